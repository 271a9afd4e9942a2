package v1_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/loopback-labs/e2e-agent/api/v1"
	"github.com/loopback-labs/e2e-agent/internal/models"
)

func TestV1(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API v1 Suite")
}

var _ = Describe("SuiteStatusResponse", func() {
	DescribeTable("ToModel status mapping",
		func(wire string, want models.SuiteState) {
			status := v1.SuiteStatusResponse{Status: wire}.ToModel()
			Expect(status.State).To(Equal(want))
		},
		Entry("pending", v1.SuiteStatusPending, models.SuiteStatePending),
		Entry("running", v1.SuiteStatusRunning, models.SuiteStateRunning),
		Entry("completed", v1.SuiteStatusCompleted, models.SuiteStateCompleted),
		Entry("failed", v1.SuiteStatusFailed, models.SuiteStateFailed),
		// A newer backend must not be able to push the poll loop into a
		// bogus terminal state.
		Entry("unknown maps to pending", "archived", models.SuiteStatePending),
	)

	It("should carry failure reason and artifacts through", func() {
		status := v1.SuiteStatusResponse{
			Status:        v1.SuiteStatusFailed,
			FailureReason: "assertion failed",
			Artifacts:     []v1.ArtifactRef{{ID: "a1", Name: "login.spec.ts", SizeBytes: 12}},
		}.ToModel()

		Expect(status.FailureReason).To(Equal("assertion failed"))
		Expect(status.Artifacts).To(HaveLen(1))
		Expect(status.Artifacts[0].Size).To(Equal(int64(12)))
	})
})

var _ = Describe("NewCommitSuiteRequest", func() {
	It("should translate the internal request to wire form", func() {
		req := v1.NewCommitSuiteRequest(models.SuiteRequest{
			TunnelURL:      "https://abc.tunnelgate.dev",
			Branch:         models.BranchInfo{Name: "feature"},
			CommitSHA:      "c1",
			Kind:           models.RunKindPRSequence,
			IdempotencyKey: "key",
			FilesChanged: []models.FileChange{
				{Path: "app.go", Additions: 1, Deletions: 2, Patch: "+x\n-y\n-z\n"},
			},
		})

		Expect(req.SuiteKind).To(Equal("pr-sequence"))
		Expect(req.Branch.Name).To(Equal("feature"))
		Expect(req.ChangedFiles).To(HaveLen(1))
		Expect(req.ChangedFiles[0].Deletions).To(Equal(2))
	})
})
