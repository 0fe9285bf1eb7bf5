package internal

import "github.com/programme-lv/autograder/api"

type RunGatherer interface {
	StartRun(total int)

	StartSubmission(submissionID string)
	FinishSubmission(submissionID string, data *api.RunData)
	SubmissionError(submissionID string, msg string)

	FinishRun(attempted int, failed int)
}
