package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/persona-e2e/internal/artifacts"
	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/fakepersona"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/results"
	"github.com/kuitang/persona-e2e/internal/runner"
	"github.com/kuitang/persona-e2e/internal/suite"
)

var runFlags config.Flags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scenarios",
	Long: `Run the selected scenarios against one environment and browser, or
every combination with --all-browsers and --everywhere.

Environments are dev, stage, prod, fake (an in-process identity provider)
or the host prefix of an ephemeral deployment, e.g. "jdoe" for
https://jdoe.personatest.org.

--tests takes comma-separated globs over scenario names, or tag:<tag>.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runFlags.Env, "env", "e", "", "Environment to test (default $PERSONA_ENV or prod)")
	f.StringVarP(&runFlags.Browser, "browser", "b", "", "Browser: chromium, firefox or webkit")
	f.BoolVar(&runFlags.AllBrowsers, "all-browsers", false, "Run every supported browser")
	f.BoolVar(&runFlags.Everywhere, "everywhere", false, "Run every browser against dev, stage and prod")
	f.StringVar(&runFlags.Credentials, "credentials", "", "YAML file with accounts for health checks")
	f.StringVarP(&runFlags.Tests, "tests", "t", "", "Scenarios to run (globs or tag:<tag>)")
	f.IntVarP(&runFlags.Parallel, "parallel", "p", 0, "Scenarios to run at once")
	f.DurationVar(&runFlags.Timeout, "timeout", 0, "Bound for each UI wait")
	f.BoolVar(&runFlags.Headed, "headed", false, "Show the browser windows")
	f.StringVar(&runFlags.Results, "results", "", "Results database path")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(runFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	stopFake, err := runner.StartFake(cfg, fakepersona.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := stopFake(); err != nil {
			obs.Pkg("cli").Warn("fake_shutdown_failed", "error", err.Error())
		}
	}()
	cfg.PrintStartupSummary()

	store, err := results.Open(cfg.ResultsPath)
	if err != nil {
		return err
	}
	defer store.Close()

	arts, err := openArtifacts(ctx, cfg)
	if err != nil {
		return err
	}

	r, err := runner.New(runner.Options{
		Config:    cfg,
		Registry:  suite.Default(),
		Results:   store,
		Artifacts: arts,
		Out:       cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if !summary.Success {
		return ErrScenariosFailed
	}
	return nil
}

// openArtifacts returns the S3 store when a bucket is configured and a
// local directory store otherwise.
func openArtifacts(ctx context.Context, cfg *config.Config) (artifacts.Store, error) {
	if cfg.ArtifactsBucket == "" {
		return artifacts.DirStore{Root: cfg.ArtifactsDir}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	s3, err := artifacts.NewS3Store(ctx, artifacts.S3Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.ArtifactsBucket,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return nil, err
	}
	return s3, nil
}
