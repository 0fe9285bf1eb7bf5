package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/programme-lv/autograder/api"
	"github.com/programme-lv/autograder/internal"
	"github.com/programme-lv/autograder/internal/agg"
	"github.com/programme-lv/autograder/internal/batch"
	"github.com/programme-lv/autograder/internal/config"
	"github.com/programme-lv/autograder/internal/gatherer/natsgath"
	"github.com/programme-lv/autograder/internal/gatherer/termgath"
	"github.com/programme-lv/autograder/internal/sandbox"
	"github.com/programme-lv/autograder/internal/store"
	"github.com/programme-lv/autograder/sqsgath"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	configFlag := &cli.StringFlag{
		Name:  "config",
		Value: "autograder.toml",
		Usage: "path to the TOML config file",
	}

	cmd := &cli.Command{
		Name:  "autograder",
		Usage: "batch-grade student submissions in an isolated container per entry",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "grade every submission directory under the submissions root",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "submissions", Usage: "override paths.submissions"},
					&cli.StringFlag{Name: "results", Usage: "override paths.results"},
					&cli.IntFlag{Name: "workers", Usage: "override batch.workers"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBatch(ctx, cmd, logger)
				},
			},
			{
				Name:  "aggregate",
				Usage: "load raw results payloads into the sqlite result store",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "results", Usage: "override paths.results"},
					&cli.StringFlag{Name: "db", Usage: "override paths.database"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runAggregate(ctx, cmd, logger)
				},
			},
			{
				Name:  "export",
				Usage: "merge all raw payloads into a single results_all.json",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "results", Usage: "override paths.results"},
					&cli.StringFlag{Name: "out", Value: "results_all.json"},
					&cli.BoolFlag{Name: "compress", Usage: "also write a zstd-compressed copy"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runExport(ctx, cmd)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	if v := cmd.String("submissions"); v != "" {
		cfg.Paths.Submissions = v
	}
	if v := cmd.String("results"); v != "" {
		cfg.Paths.Results = v
	}
	return cfg, nil
}

func runBatch(ctx context.Context, cmd *cli.Command, logger *slog.Logger) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.Int("workers"); v > 0 {
		cfg.Batch.Workers = int(v)
	}

	dockerCli, err := sandbox.NewDockerClient()
	if err != nil {
		return err
	}
	sb, err := sandbox.NewDockerSandbox(dockerCli, logger, sandbox.DockerOpts{
		Image:           cfg.Isolation.Image,
		Platform:        cfg.Isolation.Platform,
		SubmissionMount: cfg.Isolation.SubmissionMount,
		OutputMount:     cfg.Isolation.OutputMount,
		EntryCmd:        cfg.Isolation.EntryCmd,
		MemoryMiB:       cfg.Limits.MemoryMiB,
	})
	if err != nil {
		return err
	}

	runUuid := uuid.New().String()
	gath, cleanup, err := buildGatherer(cfg.Gatherer, runUuid)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := batch.NewRunner(
		sb,
		gath,
		logger,
		runUuid,
		cfg.Paths.Results,
		time.Duration(cfg.Limits.WallMs)*time.Millisecond,
		cfg.Batch.Workers,
	)

	summary, err := runner.Run(ctx, cfg.Paths.Submissions)
	if err != nil {
		return err
	}

	// individual failures are reported above; the batch itself succeeded
	if summary.Failed.Cardinality() > 0 {
		logger.Warn("some submissions failed",
			"failed", summary.Failed.Cardinality(),
			"ids", summary.Failed.ToSlice())
	}
	return nil
}

// buildGatherer composes the terminal gatherer with any configured
// publish targets.
func buildGatherer(cfg config.Gatherer, runUuid string) (internal.RunGatherer, func(), error) {
	gatherers := []internal.RunGatherer{termgath.New()}
	cleanup := func() {}

	if cfg.NatsUrl != "" {
		nc, err := nats.Connect(cfg.NatsUrl)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NatsUrl, err)
		}
		cleanup = func() { nc.Drain() }
		subject := cfg.NatsSubject
		if subject == "" {
			subject = "autograder.runs"
		}
		gatherers = append(gatherers, natsgath.New(nc, runUuid, subject))
	}
	if cfg.SqsUrl != "" {
		gatherers = append(gatherers, sqsgath.NewSqsRunResultQueueGatherer(runUuid, cfg.SqsUrl))
	}

	if len(gatherers) == 1 {
		return gatherers[0], cleanup, nil
	}
	return multiGatherer(gatherers), cleanup, nil
}

type multiGatherer []internal.RunGatherer

func (m multiGatherer) StartRun(total int) {
	for _, g := range m {
		g.StartRun(total)
	}
}

func (m multiGatherer) StartSubmission(submissionID string) {
	for _, g := range m {
		g.StartSubmission(submissionID)
	}
}

func (m multiGatherer) FinishSubmission(submissionID string, data *api.RunData) {
	for _, g := range m {
		g.FinishSubmission(submissionID, data)
	}
}

func (m multiGatherer) SubmissionError(submissionID string, msg string) {
	for _, g := range m {
		g.SubmissionError(submissionID, msg)
	}
}

func (m multiGatherer) FinishRun(attempted int, failed int) {
	for _, g := range m {
		g.FinishRun(attempted, failed)
	}
}

func runAggregate(ctx context.Context, cmd *cli.Command, logger *slog.Logger) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("db"); v != "" {
		cfg.Paths.Database = v
	}

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	_, err = agg.Aggregate(ctx, cfg.Paths.Results, st, logger)
	return err
}

func runExport(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return agg.Export(cfg.Paths.Results, cmd.String("out"), cmd.Bool("compress"))
}
