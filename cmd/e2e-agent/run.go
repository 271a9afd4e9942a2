package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/changeset"
	"github.com/loopback-labs/e2e-agent/internal/handlers"
	"github.com/loopback-labs/e2e-agent/internal/models"
	"github.com/loopback-labs/e2e-agent/internal/server"
	"github.com/loopback-labs/e2e-agent/internal/services"
	"github.com/loopback-labs/e2e-agent/internal/store"
	"github.com/loopback-labs/e2e-agent/internal/store/migrations"
	"github.com/loopback-labs/e2e-agent/pkg/backend"
	"github.com/loopback-labs/e2e-agent/pkg/probe"
	"github.com/loopback-labs/e2e-agent/pkg/tunnel"
)

// serveStatus force-enables the local status API for one run.
var serveStatus bool

func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger a remote test suite run",
	}
	runCmd.PersistentFlags().BoolVar(&serveStatus, "serve-status", false, "Serve the local status API during the run")

	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Test the current working changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd.Context(), func(ctx context.Context, o *services.Orchestrator, opts services.RunOptions) *models.RunResult {
				return o.RunCommitTests(ctx, opts)
			}, services.RunOptions{})
		},
	}

	var baseBranch, headBranch string
	prCmd := &cobra.Command{
		Use:   "pr",
		Short: "Test a pull request one commit at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseBranch == "" || headBranch == "" {
				return fmt.Errorf("both --base and --head are required")
			}
			return executeRun(cmd.Context(), func(ctx context.Context, o *services.Orchestrator, opts services.RunOptions) *models.RunResult {
				return o.RunPRSequenceTests(ctx, opts)
			}, services.RunOptions{BaseBranch: baseBranch, HeadBranch: headBranch})
		},
	}
	prCmd.Flags().StringVar(&baseBranch, "base", "", "PR base branch")
	prCmd.Flags().StringVar(&headBranch, "head", "", "PR head branch")

	runCmd.AddCommand(commitCmd, prCmd)
	return runCmd
}

type runFunc func(ctx context.Context, o *services.Orchestrator, opts services.RunOptions) *models.RunResult

func executeRun(ctx context.Context, run runFunc, opts services.RunOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts.Port = cfg.Agent.Port
	opts.SubdomainHint = cfg.Tunnel.Subdomain
	opts.ProbeReadiness = cfg.Agent.ProbeReadiness
	opts.ReadinessTimeout = cfg.Agent.ReadinessTimeout
	opts.PollInterval = cfg.Agent.PollInterval
	opts.MaxWait = cfg.Agent.MaxWait
	opts.Parallelism = cfg.Agent.Parallelism
	opts.DownloadArtifacts = cfg.Agent.DownloadArtifacts
	opts.DownloadDir = cfg.Agent.DownloadDir

	token, err := backend.LoadToken(cfg.Backend.TokenFile)
	if err != nil {
		return err
	}

	analyzer, err := changeset.NewAnalyzer(cfg.Agent.RepoPath, cfg.Agent.DefaultBranch)
	if err != nil {
		return err
	}

	var history services.RunRecorder
	var runStore *store.RunStore
	if cfg.Agent.DataFolder != "" {
		db, err := store.NewDB(filepath.Join(cfg.Agent.DataFolder, "e2e-agent.db"))
		if err != nil {
			return fmt.Errorf("failed to open run history database: %w", err)
		}
		defer db.Close()
		if err := migrations.Run(ctx, db); err != nil {
			return err
		}
		s := store.NewStore(db)
		runStore = s.Runs()
		history = runStore
	}

	orchestrator := services.NewOrchestrator(
		backend.NewClient(cfg.Backend.URL, token),
		tunnel.NewManager(tunnel.NewHTTPProvider(cfg.Tunnel.ProviderURL), cfg.Tunnel.AuthToken),
		analyzer,
		history,
		probe.WaitForServer,
	)

	if cfg.Server.Enabled || serveStatus {
		srv := server.NewServer(cfg, func(router *gin.RouterGroup) {
			handlers.New(orchestrator, runStore).Register(router)
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				zap.S().Named("server").Errorw("status API stopped", "error", err)
			}
		}()
	}

	result := run(ctx, orchestrator, opts)
	printResult(result)
	if !result.Success {
		exitCode = 1
	}
	return nil
}

func printResult(result *models.RunResult) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	if result.Success {
		green.Printf("✔ run %s succeeded\n", result.RunID)
	} else {
		red.Printf("✘ run %s failed", result.RunID)
		if result.Error != "" {
			fmt.Printf(": %s", result.Error)
		}
		fmt.Println()
	}

	for _, suite := range result.Suites {
		label := suite.CommitSHA
		if label == "" {
			label = "working changes"
		} else if len(label) > 7 {
			label = label[:7]
		}
		switch suite.State {
		case models.SuiteStateCompleted:
			fmt.Printf("  %s %s\n", green.Sprint("✔"), label)
		case models.SuiteStateTimedOut:
			fmt.Printf("  %s %s timed out (the remote suite may still be running)\n", yellow.Sprint("…"), label)
		default:
			fmt.Printf("  %s %s %s\n", red.Sprint("✘"), label, suite.FailureReason)
		}
		for _, f := range suite.TestFiles {
			fmt.Printf("      %s\n", f)
		}
	}
}
