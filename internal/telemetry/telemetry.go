// Package telemetry defines the narrow, optional observability seam core
// packages call into. The default Recorder is a no-op; a caller that wants
// metrics supplies its own implementation (e.g. backed by
// github.com/prometheus/client_golang) without the core ever importing a
// metrics library directly.
package telemetry

import "time"

// Recorder receives point-in-time signals from proxy internals. Every
// method must be safe for concurrent use and must not block its caller for
// any meaningful amount of time.
type Recorder interface {
	IncProtocolError(tag string)
	ObserveDialLatency(d time.Duration, ok bool)
	RecordPlayerConnect(configID string)
	RecordPlayerDisconnect(configID string)
}

// NoOp is the default Recorder: every method is a no-op.
type NoOp struct{}

var _ Recorder = NoOp{}

func (NoOp) IncProtocolError(string)             {}
func (NoOp) ObserveDialLatency(time.Duration, bool) {}
func (NoOp) RecordPlayerConnect(string)          {}
func (NoOp) RecordPlayerDisconnect(string)       {}
