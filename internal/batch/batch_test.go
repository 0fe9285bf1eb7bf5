package batch_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/programme-lv/autograder/api"
	"github.com/programme-lv/autograder/internal/batch"
	"github.com/programme-lv/autograder/internal/sandbox"
	"github.com/stretchr/testify/require"
)

type fakeSandbox struct {
	mu        sync.Mutex
	invoked   []string
	exitCode  map[string]int64 // per submission id, default 0
	launchErr map[string]error
}

func (f *fakeSandbox) Run(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
	f.mu.Lock()
	f.invoked = append(f.invoked, spec.SubmissionID)
	f.mu.Unlock()

	if err := f.launchErr[spec.SubmissionID]; err != nil {
		return nil, err
	}
	return &sandbox.RunResult{
		ExitCode: f.exitCode[spec.SubmissionID],
		Stdout:   "graded " + spec.SubmissionID,
	}, nil
}

type nopGatherer struct{}

func (nopGatherer) StartRun(total int)                                   {}
func (nopGatherer) StartSubmission(submissionID string)                  {}
func (nopGatherer) FinishSubmission(submissionID string, _ *api.RunData) {}
func (nopGatherer) SubmissionError(submissionID string, msg string)      {}
func (nopGatherer) FinishRun(attempted int, failed int)                  {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeSubmissions(t *testing.T, ids []string, strayFiles []string) string {
	t.Helper()
	root := t.TempDir()
	for _, id := range ids {
		require.NoError(t, os.Mkdir(filepath.Join(root, id), 0755))
	}
	for _, name := range strayFiles {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))
	}
	return root
}

func TestRunAttemptsEveryDirectoryAndSkipsFiles(t *testing.T) {
	root := makeSubmissions(t, []string{"alice", "bob"}, []string{"readme.txt"})
	resultsRoot := filepath.Join(t.TempDir(), "results")

	sb := &fakeSandbox{}
	runner := batch.NewRunner(sb, nopGatherer{}, testLogger(), "", resultsRoot, 0, 1)

	summary, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Attempted())
	require.ElementsMatch(t, []string{"alice", "bob"}, sb.invoked)
	require.Equal(t, 0, summary.Failed.Cardinality())

	require.DirExists(t, filepath.Join(resultsRoot, "alice"))
	require.DirExists(t, filepath.Join(resultsRoot, "bob"))
	require.NoDirExists(t, filepath.Join(resultsRoot, "readme.txt"))
}

func TestRunContinuesAfterFailure(t *testing.T) {
	root := makeSubmissions(t, []string{"alice", "bob", "carol"}, nil)
	resultsRoot := filepath.Join(t.TempDir(), "results")

	sb := &fakeSandbox{
		launchErr: map[string]error{"alice": fmt.Errorf("image missing")},
		exitCode:  map[string]int64{"bob": 1},
	}
	runner := batch.NewRunner(sb, nopGatherer{}, testLogger(), "", resultsRoot, 0, 1)

	summary, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	require.Equal(t, 3, summary.Attempted())
	require.True(t, summary.Failed.Contains("alice"))
	require.True(t, summary.Failed.Contains("bob"))
	require.False(t, summary.Failed.Contains("carol"))

	// output directories exist regardless of outcome
	for _, id := range []string{"alice", "bob", "carol"} {
		require.DirExists(t, filepath.Join(resultsRoot, id))
	}
}

func TestRunMissingRootIsFatal(t *testing.T) {
	resultsRoot := filepath.Join(t.TempDir(), "results")
	runner := batch.NewRunner(&fakeSandbox{}, nopGatherer{}, testLogger(), "", resultsRoot, 0, 1)

	_, err := runner.Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestRunParallelWorkersKeepIsolatedOutputs(t *testing.T) {
	ids := []string{"s1", "s2", "s3", "s4", "s5"}
	root := makeSubmissions(t, ids, nil)
	resultsRoot := filepath.Join(t.TempDir(), "results")

	sb := &fakeSandbox{launchErr: map[string]error{"s3": fmt.Errorf("boom")}}
	runner := batch.NewRunner(sb, nopGatherer{}, testLogger(), "", resultsRoot, 0, 4)

	summary, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	require.Equal(t, len(ids), summary.Attempted())
	require.ElementsMatch(t, ids, sb.invoked)
	require.Equal(t, 1, summary.Failed.Cardinality())
	for _, id := range ids {
		require.DirExists(t, filepath.Join(resultsRoot, id))
	}
}

func TestRunOutcomesAreSorted(t *testing.T) {
	root := makeSubmissions(t, []string{"zed", "amy"}, nil)
	resultsRoot := filepath.Join(t.TempDir(), "results")

	runner := batch.NewRunner(&fakeSandbox{}, nopGatherer{}, testLogger(), "", resultsRoot, 0, 2)
	summary, err := runner.Run(context.Background(), root)
	require.NoError(t, err)

	require.Equal(t, "amy", summary.Outcomes[0].Entry.ID)
	require.Equal(t, "zed", summary.Outcomes[1].Entry.ID)
}
