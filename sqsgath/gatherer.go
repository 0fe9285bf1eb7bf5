package sqsgath

import (
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/autograder/api"
)

type sqsRunQueueGatherer struct {
	sqsClient *sqs.Client
	queueUrl  string
	runUuid   string
}

func (s *sqsRunQueueGatherer) StartRun(total int) {
	s.send(api.NewStartRun(s.runUuid, total))
}

func (s *sqsRunQueueGatherer) StartSubmission(submissionID string) {
	s.send(api.NewStartSubmission(s.runUuid, submissionID))
}

func (s *sqsRunQueueGatherer) FinishSubmission(submissionID string, data *api.RunData) {
	msg := api.NewFinishSubmission(
		s.runUuid,
		submissionID,
		mapRunData(data, api.MaxRunDataHeight*2, api.MaxRunDataWidth*2),
	)
	s.send(msg)
}

func (s *sqsRunQueueGatherer) SubmissionError(submissionID string, msg string) {
	s.send(api.NewSubmissionError(s.runUuid, submissionID, msg))
}

func (s *sqsRunQueueGatherer) FinishRun(attempted int, failed int) {
	s.send(api.NewFinishRun(s.runUuid, attempted, failed))
}

func mapRunData(data *api.RunData, ioHeight int, ioWidth int) *api.RunData {
	if data == nil {
		return nil
	}
	return &api.RunData{
		Stdout:     trimStrToRect(data.Stdout, ioHeight, ioWidth),
		Stderr:     trimStrToRect(data.Stderr, ioHeight, ioWidth),
		ExitCode:   data.ExitCode,
		WallMillis: data.WallMillis,
		TimedOut:   data.TimedOut,
	}
}
