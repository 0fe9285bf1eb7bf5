package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Submission status values stored in the submissions table
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Per-test status recorded by the grading image. Anything other than
// "passed" counts as a failure; "error" additionally marks payloads the
// aggregator could not read at all.
const (
	TestStatusPassed = "passed"
	TestStatusFailed = "failed"
	TestStatusError  = "error"
)

// RawResult is the results.json payload a grading container writes into
// its output directory. The format is owned by the grading image; only
// the tests array is interpreted here.
type RawResult struct {
	Tests  []RawTest `json:"tests"`
	Score  *float64  `json:"score,omitempty"`
	Output string    `json:"output,omitempty"`
}

// RawTest is a single test entry inside a RawResult
type RawTest struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Output string   `json:"output"`
	Score  *float64 `json:"score,omitempty"`
}

// FailedTest is one row destined for the results_filtered table
type FailedTest struct {
	SubmissionID string `json:"submission_id" db:"submission_id"`
	Name         string `json:"name" db:"name"`
	Status       string `json:"status" db:"status"`
	Output       string `json:"output" db:"output"`
}

// SubmissionReport is the classified outcome of one submission's raw
// payload: an overall status plus the non-passed tests.
type SubmissionReport struct {
	SubmissionID string       `json:"submission_id"`
	Status       string       `json:"status"`
	FailedTests  []FailedTest `json:"failed_tests"`
}

// ParseRawResult decodes a results.json payload.
func ParseRawResult(data []byte) (*RawResult, error) {
	var res RawResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse results payload: %w", err)
	}
	return &res, nil
}

// Classify turns a raw payload into a SubmissionReport. A submission
// passes iff every test has status "passed"; only the rest are kept.
func Classify(submissionID string, raw *RawResult) SubmissionReport {
	report := SubmissionReport{
		SubmissionID: submissionID,
		Status:       StatusPassed,
		FailedTests:  []FailedTest{},
	}

	for _, t := range raw.Tests {
		if t.Status == TestStatusPassed {
			continue
		}
		status := t.Status
		if status == "" {
			status = TestStatusFailed
		}
		report.FailedTests = append(report.FailedTests, FailedTest{
			SubmissionID: submissionID,
			Name:         t.Name,
			Status:       status,
			Output:       strings.TrimSpace(t.Output),
		})
	}

	if len(report.FailedTests) > 0 {
		report.Status = StatusFailed
	}
	return report
}

// ErrorReport builds the report recorded when a submission's payload is
// missing or unreadable. The submission is marked failed instead of
// being dropped so the store stays complete over the submission set.
func ErrorReport(submissionID string, reason string) SubmissionReport {
	return SubmissionReport{
		SubmissionID: submissionID,
		Status:       StatusFailed,
		FailedTests: []FailedTest{
			{
				SubmissionID: submissionID,
				Name:         "results.json",
				Status:       TestStatusError,
				Output:       reason,
			},
		},
	}
}
