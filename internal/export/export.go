// Package export provides the optional forensic export hook mentioned by
// the core's scope: the core itself owns no persistent state, but fused
// captions, raw captions, and admin actions can optionally be written
// somewhere durable for later review. The default Sink is a no-op; a
// SQLite-backed sink is provided for operators who want one.
package export

import "time"

// Sink receives export events. Implementations must not block the caller
// for long and must never panic; the engine treats this as best-effort.
type Sink interface {
	RawCaption(slotIndex int, text string, videoTimestamp int64, at time.Time)
	FusedCaption(id, text string, slotIndex, overlapCount int, videoTimestamp int64, at time.Time)
	AdminAction(action, detail string, at time.Time)
	Close() error
}

// NoopSink discards everything. It is the default Sink when no durable
// export is configured.
type NoopSink struct{}

func (NoopSink) RawCaption(int, string, int64, time.Time)             {}
func (NoopSink) FusedCaption(string, string, int, int, int64, time.Time) {}
func (NoopSink) AdminAction(string, string, time.Time)                 {}
func (NoopSink) Close() error                                          { return nil }
