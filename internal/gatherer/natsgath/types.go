package natsgath

import (
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/autograder/api"
)

type natsGatherer struct {
	nc      *nats.Conn
	subject string
	runUuid string
}

func (s *natsGatherer) StartRun(total int) {
	s.send(api.NewStartRun(s.runUuid, total))
}

func (s *natsGatherer) StartSubmission(submissionID string) {
	s.send(api.NewStartSubmission(s.runUuid, submissionID))
}

func (s *natsGatherer) FinishSubmission(submissionID string, data *api.RunData) {
	msg := api.NewFinishSubmission(
		s.runUuid,
		submissionID,
		trimRunDataStrings(data, api.MaxRunDataHeight, api.MaxRunDataWidth),
	)
	s.send(msg)
}

func (s *natsGatherer) SubmissionError(submissionID string, msg string) {
	s.send(api.NewSubmissionError(s.runUuid, submissionID, msg))
}

func (s *natsGatherer) FinishRun(attempted int, failed int) {
	s.send(api.NewFinishRun(s.runUuid, attempted, failed))
}

func trimRunDataStrings(data *api.RunData, ioHeight int, ioWidth int) *api.RunData {
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
