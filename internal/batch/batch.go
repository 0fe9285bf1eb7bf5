package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/programme-lv/autograder/api"
	"github.com/programme-lv/autograder/internal"
	"github.com/programme-lv/autograder/internal/sandbox"
	"github.com/programme-lv/autograder/internal/submission"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// Runner grades every submission under a root directory, one isolated
// execution per entry. Per-entry failures are reported and recorded but
// never abort the batch; only setup failures (listing the root,
// creating the results root) are fatal.
type Runner struct {
	sandbox  sandbox.Sandbox
	gatherer internal.RunGatherer
	logger   *slog.Logger

	runUuid     string
	resultsRoot string
	wallTime    time.Duration // zero means no per-entry timeout
	workers     int
}

// Outcome is the recorded result of one submission's grading attempt.
type Outcome struct {
	Entry submission.Entry
	Data  *api.RunData
	Err   error
}

type Summary struct {
	RunUuid  string
	Outcomes []Outcome
	Failed   mapset.Set[string]
}

func (s *Summary) Attempted() int { return len(s.Outcomes) }

func NewRunner(
	sb sandbox.Sandbox,
	gath internal.RunGatherer,
	logger *slog.Logger,
	runUuid string,
	resultsRoot string,
	wallTime time.Duration,
	workers int,
) *Runner {
	if workers < 1 {
		workers = 1
	}
	if runUuid == "" {
		runUuid = uuid.New().String()
	}
	return &Runner{
		sandbox:     sb,
		gatherer:    gath,
		logger:      logger,
		runUuid:     runUuid,
		resultsRoot: resultsRoot,
		wallTime:    wallTime,
		workers:     workers,
	}
}

// Run grades all submissions under submissionsRoot. The returned error
// is non-nil only for setup failures; individual grading failures are
// reflected in the summary.
func (r *Runner) Run(ctx context.Context, submissionsRoot string) (*Summary, error) {
	entries, err := submission.List(submissionsRoot)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.resultsRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results root %s: %w", r.resultsRoot, err)
	}

	r.gatherer.StartRun(len(entries))
	r.logger.Info("batch run started",
		"run_uuid", r.runUuid,
		"submissions", len(entries),
		"workers", r.workers)

	outcomes := xsync.NewMapOf[string, Outcome]()

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(r.workers)
	for _, entry := range entries {
		grp.Go(func() error {
			// grading failures are recorded, never returned, so one
			// entry cannot cancel the group
			outcomes.Store(entry.ID, r.gradeOne(grpCtx, entry))
			return nil
		})
	}
	_ = grp.Wait()

	summary := &Summary{
		RunUuid:  r.runUuid,
		Outcomes: make([]Outcome, 0, len(entries)),
		Failed:   mapset.NewSet[string](),
	}
	outcomes.Range(func(id string, o Outcome) bool {
		summary.Outcomes = append(summary.Outcomes, o)
		if o.Err != nil || (o.Data != nil && o.Data.ExitCode != 0) {
			summary.Failed.Add(id)
		}
		return true
	})
	sort.Slice(summary.Outcomes, func(i, j int) bool {
		return summary.Outcomes[i].Entry.ID < summary.Outcomes[j].Entry.ID
	})

	r.gatherer.FinishRun(summary.Attempted(), summary.Failed.Cardinality())
	r.logger.Info("batch run finished",
		"run_uuid", r.runUuid,
		"attempted", summary.Attempted(),
		"failed", summary.Failed.Cardinality())
	return summary, nil
}

func (r *Runner) gradeOne(ctx context.Context, entry submission.Entry) Outcome {
	r.gatherer.StartSubmission(entry.ID)

	outDir := filepath.Join(r.resultsRoot, entry.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		err = fmt.Errorf("failed to create output directory for %s: %w", entry.ID, err)
		r.logger.Error("submission failed", "submission_id", entry.ID, "err", err)
		r.gatherer.SubmissionError(entry.ID, err.Error())
		return Outcome{Entry: entry, Err: err}
	}

	subDir, err := filepath.Abs(entry.Path)
	if err != nil {
		r.logger.Error("submission failed", "submission_id", entry.ID, "err", err)
		r.gatherer.SubmissionError(entry.ID, err.Error())
		return Outcome{Entry: entry, Err: err}
	}
	absOutDir, err := filepath.Abs(outDir)
	if err != nil {
		r.logger.Error("submission failed", "submission_id", entry.ID, "err", err)
		r.gatherer.SubmissionError(entry.ID, err.Error())
		return Outcome{Entry: entry, Err: err}
	}

	if r.wallTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wallTime)
		defer cancel()
	}

	res, err := r.sandbox.Run(ctx, sandbox.RunSpec{
		SubmissionID:  entry.ID,
		SubmissionDir: subDir,
		OutputDir:     absOutDir,
	})
	if err != nil {
		r.logger.Error("submission failed", "submission_id", entry.ID, "err", err)
		r.gatherer.SubmissionError(entry.ID, err.Error())
		return Outcome{Entry: entry, Data: toRunData(res), Err: err}
	}

	data := toRunData(res)
	r.gatherer.FinishSubmission(entry.ID, data)
	if res.ExitCode != 0 {
		r.logger.Warn("submission exited non-zero",
			"submission_id", entry.ID,
			"exit_code", res.ExitCode)
	}
	return Outcome{Entry: entry, Data: data}
}

func toRunData(res *sandbox.RunResult) *api.RunData {
	if res == nil {
		return nil
	}
	return &api.RunData{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		WallMillis: res.WallMillis,
		TimedOut:   res.TimedOut,
	}
}
