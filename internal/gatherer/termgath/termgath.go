package termgath

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/autograder/api"
)

type TerminalGatherer struct {
	StartedAt time.Time
}

func New() *TerminalGatherer { return &TerminalGatherer{StartedAt: time.Now()} }

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

func (t *TerminalGatherer) StartRun(total int) {
	fmt.Printf("== Batch run started: %d submissions ==\n", total)
}

func (t *TerminalGatherer) StartSubmission(submissionID string) {
	fmt.Printf("-> %s\n", submissionID)
}

func (t *TerminalGatherer) FinishSubmission(submissionID string, data *api.RunData) {
	if data == nil {
		fmt.Printf("<- %s\n", submissionID)
		return
	}
	if data.ExitCode == 0 {
		okColor.Printf("<- %s ok", submissionID)
	} else {
		failColor.Printf("<- %s exit=%d", submissionID, data.ExitCode)
	}
	fmt.Printf(" wall=%dms\n", data.WallMillis)
	if data.ExitCode != 0 && len(data.Stderr) > 0 {
		fmt.Printf("stderr:\n%s\n", data.Stderr)
	}
}

func (t *TerminalGatherer) SubmissionError(submissionID string, msg string) {
	failColor.Printf("<- %s error: %s\n", submissionID, msg)
}

func (t *TerminalGatherer) FinishRun(attempted int, failed int) {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	if failed > 0 {
		failColor.Printf("== Batch finished in %s: %d attempted, %d failed ==\n", dur, attempted, failed)
	} else {
		okColor.Printf("== Batch finished in %s: %d attempted, all ok ==\n", dur, attempted)
	}
}
