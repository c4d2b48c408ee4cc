// Package report records per-segment transfer outcomes and renders them
// into on-disk artifacts once a download finishes.
package report

import "time"

// Reporter receives segment outcomes from a download session. Lost means
// the segment was missing when the stream went quiet; Recovered means a
// later RESEND round brought it back.
type Reporter interface {
	SegmentDelivered(seq uint32)
	SegmentLost(seq uint32)
	SegmentRecovered(seq uint32)
	Summarize(total uint32, elapsed time.Duration) error
}

// Nop discards everything. Sessions that run without reporting use it so
// call sites never nil-check.
type Nop struct{}

func (Nop) SegmentDelivered(uint32)               {}
func (Nop) SegmentLost(uint32)                    {}
func (Nop) SegmentRecovered(uint32)               {}
func (Nop) Summarize(uint32, time.Duration) error { return nil }

var _ Reporter = Nop{}
