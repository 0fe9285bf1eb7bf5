// Package agg is the aggregation step: it reads each submission's raw
// results.json payload, classifies the overall status, and upserts the
// normalized rows into the result store. A submission whose payload is
// missing or unreadable is recorded with a failure status instead of
// being dropped, so the store stays complete over the submission set.
package agg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/autograder/api"
	"github.com/programme-lv/autograder/internal/store"
	"github.com/programme-lv/autograder/internal/submission"
)

// PayloadFilename is the file each grading container writes into its
// output directory.
const PayloadFilename = "results.json"

type Report struct {
	Total   int
	Passed  int
	Failed  int
	Missing mapset.Set[string] // ids whose payload was absent or unreadable
}

// Aggregate loads every payload under resultsRoot into st. Per-payload
// problems are recorded as failures; only store or listing errors abort.
func Aggregate(ctx context.Context, resultsRoot string, st *store.Store, logger *slog.Logger) (*Report, error) {
	entries, err := submission.List(resultsRoot)
	if err != nil {
		return nil, err
	}

	report := &Report{Missing: mapset.NewSet[string]()}
	for _, entry := range entries {
		subReport := loadOne(entry)
		if err := st.SaveReport(ctx, subReport); err != nil {
			return nil, err
		}

		report.Total++
		switch subReport.Status {
		case api.StatusPassed:
			report.Passed++
		default:
			report.Failed++
		}
		if isMissing(subReport) {
			report.Missing.Add(entry.ID)
			logger.Warn("no readable results payload",
				"submission_id", entry.ID,
				"reason", subReport.FailedTests[0].Output)
		}
	}

	logger.Info("aggregation finished",
		"total", report.Total,
		"passed", report.Passed,
		"failed", report.Failed,
		"missing", report.Missing.Cardinality())
	return report, nil
}

func loadOne(entry submission.Entry) api.SubmissionReport {
	data, err := os.ReadFile(filepath.Join(entry.Path, PayloadFilename))
	if err != nil {
		return api.ErrorReport(entry.ID, fmt.Sprintf("no %s", PayloadFilename))
	}
	raw, err := api.ParseRawResult(data)
	if err != nil {
		return api.ErrorReport(entry.ID, err.Error())
	}
	return api.Classify(entry.ID, raw)
}

func isMissing(r api.SubmissionReport) bool {
	return len(r.FailedTests) == 1 &&
		r.FailedTests[0].Name == PayloadFilename &&
		r.FailedTests[0].Status == api.TestStatusError
}

// Export merges every raw payload under resultsRoot into one JSON
// document keyed by submission id and writes it to outPath. Missing
// payloads become {"error": "no results.json"} entries. With compress
// set, a zstd-compressed copy is written next to it.
func Export(resultsRoot string, outPath string, compress bool) error {
	entries, err := submission.List(resultsRoot)
	if err != nil {
		return err
	}

	merged := map[string]json.RawMessage{}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(entry.Path, PayloadFilename))
		if err != nil || !json.Valid(data) {
			errEntry, _ := json.Marshal(map[string]string{"error": "no " + PayloadFilename})
			merged[entry.ID] = errEntry
			continue
		}
		merged[entry.ID] = json.RawMessage(data)
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal merged results: %w", err)
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	if compress {
		if err := writeZstd(outPath+".zst", out); err != nil {
			return err
		}
	}
	return nil
}

func writeZstd(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return enc.Close()
}
