package agg_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/autograder/api"
	"github.com/programme-lv/autograder/internal/agg"
	"github.com/programme-lv/autograder/internal/store"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writePayload(t *testing.T, root, id, payload string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "results.json"), []byte(payload), 0644))
}

func TestAggregateClassifiesSubmissions(t *testing.T) {
	root := t.TempDir()
	writePayload(t, root, "alice", `{"tests":[
		{"name":"test_one","status":"passed","output":""},
		{"name":"test_two","status":"passed","output":""}]}`)
	writePayload(t, root, "bob", `{"tests":[
		{"name":"test_one","status":"passed","output":""},
		{"name":"test_two","status":"failed","output":"expected 2 got 3\n"}]}`)

	st, err := store.Open(filepath.Join(t.TempDir(), "res.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	report, err := agg.Aggregate(ctx, root, st, testLogger())
	require.NoError(t, err)

	require.Equal(t, 2, report.Total)
	require.Equal(t, 1, report.Passed)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 0, report.Missing.Cardinality())

	alice, err := st.GetSubmission(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, api.StatusPassed, alice.Status)

	aliceRecs, err := st.ListFailedTests(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, aliceRecs)

	bob, err := st.GetSubmission(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, api.StatusFailed, bob.Status)

	bobRecs, err := st.ListFailedTests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobRecs, 1)
	require.Equal(t, "test_two", bobRecs[0].Name)
	require.Equal(t, "expected 2 got 3", bobRecs[0].Output)
}

func TestAggregateRecordsMissingPayloadAsFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "carol"), 0755))
	writePayload(t, root, "dave", `{not json`)

	st, err := store.Open(filepath.Join(t.TempDir(), "res.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	report, err := agg.Aggregate(ctx, root, st, testLogger())
	require.NoError(t, err)

	require.Equal(t, 2, report.Failed)
	require.True(t, report.Missing.Contains("carol"))
	require.True(t, report.Missing.Contains("dave"))

	for _, id := range []string{"carol", "dave"} {
		subm, err := st.GetSubmission(ctx, id)
		require.NoError(t, err)
		require.Equal(t, api.StatusFailed, subm.Status)

		recs, err := st.ListFailedTests(ctx, id)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		require.Equal(t, "results.json", recs[0].Name)
		require.Equal(t, api.TestStatusError, recs[0].Status)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writePayload(t, root, "alice", `{"tests":[{"name":"t","status":"failed","output":"x"}]}`)

	st, err := store.Open(filepath.Join(t.TempDir(), "res.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = agg.Aggregate(ctx, root, st, testLogger())
	require.NoError(t, err)
	_, err = agg.Aggregate(ctx, root, st, testLogger())
	require.NoError(t, err)

	subms, err := st.ListSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, subms, 1)

	recs, err := st.ListFailedTests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestExportMergesPayloads(t *testing.T) {
	root := t.TempDir()
	writePayload(t, root, "alice", `{"tests":[]}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bob"), 0755))

	outPath := filepath.Join(t.TempDir(), "results_all.json")
	require.NoError(t, agg.Export(root, outPath, false))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var merged map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &merged))
	require.Len(t, merged, 2)
	require.JSONEq(t, `{"tests":[]}`, string(merged["alice"]))
	require.JSONEq(t, `{"error":"no results.json"}`, string(merged["bob"]))
}

func TestExportCompressed(t *testing.T) {
	root := t.TempDir()
	writePayload(t, root, "alice", `{"tests":[]}`)

	outPath := filepath.Join(t.TempDir(), "results_all.json")
	require.NoError(t, agg.Export(root, outPath, true))

	plain, err := os.ReadFile(outPath)
	require.NoError(t, err)

	compressed, err := os.ReadFile(outPath + ".zst")
	require.NoError(t, err)

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer dec.Close()

	decompressed, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, plain, decompressed)
}
