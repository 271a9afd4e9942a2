package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"

	"github.com/loopback-labs/e2e-agent/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

func writeConfigFile(content string) string {
	path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Load", func() {
	It("should apply defaults without a config file", func() {
		cfg, err := config.Load("", nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Agent.Port).To(Equal(3000))
		Expect(cfg.Agent.DefaultBranch).To(Equal("main"))
		Expect(cfg.Agent.PollInterval).To(Equal(5 * time.Second))
		Expect(cfg.Agent.MaxWait).To(Equal(10 * time.Minute))
		Expect(cfg.Agent.ProbeReadiness).To(BeTrue())
		Expect(cfg.Backend.URL).To(Equal("http://localhost:7443"))
		Expect(cfg.LogLevel).To(Equal("info"))
	})

	It("should let the config file override defaults", func() {
		path := writeConfigFile(`
agent:
  port: 8080
  poll_interval: 2s
backend:
  url: https://e2e.example.com
`)

		cfg, err := config.Load(path, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Agent.Port).To(Equal(8080))
		Expect(cfg.Agent.PollInterval).To(Equal(2 * time.Second))
		Expect(cfg.Backend.URL).To(Equal("https://e2e.example.com"))
		// Untouched keys keep their defaults.
		Expect(cfg.Agent.MaxWait).To(Equal(10 * time.Minute))
	})

	It("should let the environment override the config file", func() {
		path := writeConfigFile("agent:\n  port: 8080\n")
		os.Setenv("E2E_AGENT_AGENT_PORT", "9090")
		defer os.Unsetenv("E2E_AGENT_AGENT_PORT")

		cfg, err := config.Load(path, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Agent.Port).To(Equal(9090))
	})

	It("should let explicitly set flags override everything", func() {
		path := writeConfigFile("agent:\n  port: 8080\n")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("port", 0, "")
		flags.String("repo", "", "")
		Expect(flags.Parse([]string{"--port", "4242"})).To(Succeed())

		cfg, err := config.Load(path, flags)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Agent.Port).To(Equal(4242))
		// The repo flag was not set, so the default survives.
		Expect(cfg.Agent.RepoPath).To(Equal("."))
	})

	It("should fail for a missing config file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "absent.yaml"), nil)

		Expect(err).To(HaveOccurred())
	})

	It("should reject an invalid port", func() {
		path := writeConfigFile("agent:\n  port: -1\n")

		_, err := config.Load(path, nil)

		Expect(err).To(MatchError(ContainSubstring("invalid agent port")))
	})
})
