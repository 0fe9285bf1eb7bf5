package api

import "time"

// MsgType is a message type for streaming batch run progress
type MsgType string

// Streaming message type constants
const (
	StartRunMsg         MsgType = "run_start"
	StartSubmissionMsg  MsgType = "submission_start"
	FinishSubmissionMsg MsgType = "submission_finish"
	SubmissionErrorMsg  MsgType = "submission_error"
	FinishRunMsg        MsgType = "run_finish"
)

// Run data size constraints for streaming
const (
	MaxRunDataHeight = 40
	MaxRunDataWidth  = 80
)

// Header is the common header for all streaming batch messages
type Header struct {
	RunUuid string  `json:"run_uuid"`
	MsgType MsgType `json:"msg_type"`
}

// RunData contains execution information for one grading container run
type RunData struct {
	Stdout   string `json:"out"`
	Stderr   string `json:"err"`
	ExitCode int64  `json:"exit"`

	WallMillis int64 `json:"wall_ms"`

	TimedOut bool `json:"timed_out"`
}

// StartRun message sent when a batch run begins
type StartRun struct {
	Header
	Total       int    `json:"total"`
	StartedTime string `json:"started_time"`
}

// StartSubmission message sent when a submission's grading begins
type StartSubmission struct {
	Header
	SubmissionID string `json:"submission_id"`
}

// FinishSubmission message sent when a submission's grading completes
type FinishSubmission struct {
	Header
	SubmissionID string   `json:"submission_id"`
	RunData      *RunData `json:"run_data"`
}

// SubmissionError message sent when a submission's grading fails to run
type SubmissionError struct {
	Header
	SubmissionID string `json:"submission_id"`
	ErrorMessage string `json:"error_message"`
}

// FinishRun message sent when the whole batch completes
type FinishRun struct {
	Header
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
}

// Helper function to create a header
func NewHeader(runUuid string, msgType MsgType) Header {
	return Header{
		RunUuid: runUuid,
		MsgType: msgType,
	}
}

// Helper functions to create specific streaming message types
func NewStartRun(runUuid string, total int) StartRun {
	return StartRun{
		Header:      NewHeader(runUuid, StartRunMsg),
		Total:       total,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartSubmission(runUuid, submissionID string) StartSubmission {
	return StartSubmission{
		Header:       NewHeader(runUuid, StartSubmissionMsg),
		SubmissionID: submissionID,
	}
}

func NewFinishSubmission(runUuid, submissionID string, runData *RunData) FinishSubmission {
	return FinishSubmission{
		Header:       NewHeader(runUuid, FinishSubmissionMsg),
		SubmissionID: submissionID,
		RunData:      runData,
	}
}

func NewSubmissionError(runUuid, submissionID, errorMessage string) SubmissionError {
	return SubmissionError{
		Header:       NewHeader(runUuid, SubmissionErrorMsg),
		SubmissionID: submissionID,
		ErrorMessage: errorMessage,
	}
}

func NewFinishRun(runUuid string, attempted, failed int) FinishRun {
	return FinishRun{
		Header:    NewHeader(runUuid, FinishRunMsg),
		Attempted: attempted,
		Failed:    failed,
	}
}
