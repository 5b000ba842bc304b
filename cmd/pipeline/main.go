package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/auditron-ci/internal/application"
	apppipelines "github.com/bryanwahyu/auditron-ci/internal/application/pipelines"
	"github.com/bryanwahyu/auditron-ci/internal/config"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
	localexec "github.com/bryanwahyu/auditron-ci/internal/infra/executor/local"
	manifestres "github.com/bryanwahyu/auditron-ci/internal/infra/manifests"
)

// One-shot CI entrypoint: runs a single pipeline against a checked-out work
// dir and exits non-zero on environment failure. No database, object store
// or mail is required; the report lands next to the sources.
func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		workDir    = flag.String("workdir", ".", "project directory to scan")
		kind       = flag.String("pipeline", "dependency-scan", "pipeline to run: dependency-scan | static-analysis")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	prep := &localexec.VenvProvisioner{
		Dir:            cfg.Pipeline.VenvDir,
		InstallCommand: cfg.Pipeline.InstallCommand,
		TestCommand:    cfg.Pipeline.TestCommand,
		Log:            log,
	}
	runner := localexec.NewRunner()
	runner.VenvDir = cfg.Pipeline.VenvDir

	svc := &apppipelines.Service{
		Resolver:  manifestres.NewResolver(),
		Runner:    runner,
		Prep:      prep,
		Clock:     application.SystemClock{},
		Cfg:       cfg.Pipeline,
		SonarHost: cfg.Sonar.HostURL,
		Log:       log,
	}

	cmd := apppipelines.TriggerCommand{WorkDir: *workDir}

	var outcome domain.PipelineOutcome
	switch *kind {
	case string(domain.KindDependencyScan):
		outcome, err = svc.RunDependencyScan(context.Background(), cmd)
	case string(domain.KindStaticAnalysis):
		outcome, err = svc.RunStaticAnalysis(context.Background(), cmd)
	default:
		log.Fatal().Str("pipeline", *kind).Msg("unknown pipeline kind")
	}

	if err != nil {
		log.Error().Err(err).Str("run", string(outcome.RunID)).Msg("pipeline failed")
		os.Exit(1)
	}

	findings := 0
	if outcome.Summary != nil {
		findings = outcome.Summary.FindingCount
	}
	log.Info().
		Str("run", string(outcome.RunID)).
		Str("status", string(outcome.Status)).
		Int("findings", findings).
		Str("report", outcome.ReportLocation).
		Msg("pipeline finished")
	fmt.Printf("report written to %s (%d approximate findings)\n", outcome.ReportLocation, findings)
}
