package natsgath

import (
	"github.com/nats-io/nats.go"
)

// New creates a new NATS gatherer that streams batch progress to the given subject.
func New(nc *nats.Conn, runUuid string, subject string) *natsGatherer {
	return &natsGatherer{
		nc:      nc,
		subject: subject,
		runUuid: runUuid,
	}
}
