package changeset

import (
	"errors"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// unreadableFS rejects every Open with a permission error.
type unreadableFS struct {
	billy.Filesystem
}

func (unreadableFS) Open(name string) (billy.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
}

var _ = Describe("worktreeContents", func() {
	var a *Analyzer

	BeforeEach(func() {
		a = &Analyzer{}
	})

	It("should return the current file contents", func() {
		fs := memfs.New()
		Expect(util.WriteFile(fs, "cfg.yaml", []byte("answer: 42\n"), 0o644)).To(Succeed())

		contents, err := a.worktreeContents(fs, "cfg.yaml")

		Expect(err).NotTo(HaveOccurred())
		Expect(contents).To(Equal("answer: 42\n"))
	})

	It("should treat a missing file as deleted", func() {
		contents, err := a.worktreeContents(memfs.New(), "gone.txt")

		Expect(err).NotTo(HaveOccurred())
		Expect(contents).To(BeEmpty())
	})

	// Given a file that exists but cannot be opened
	// When its contents are requested
	// Then the failure is surfaced instead of being reported as a deletion
	It("should surface open failures other than a missing file", func() {
		_, err := a.worktreeContents(unreadableFS{memfs.New()}, "locked.txt")

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("locked.txt"))
		Expect(errors.Is(err, os.ErrPermission)).To(BeTrue())
	})
})
