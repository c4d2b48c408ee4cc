package client

import (
	"math/rand"
	"time"
)

// DropFunc decides, per inbound DATA frame, whether to pretend the
// datagram never arrived.
type DropFunc func() bool

// NeverDrop keeps every frame.
func NeverDrop() bool { return false }

// NewLossSimulator returns a DropFunc that discards roughly percent of
// the frames it is asked about. The same seed replays the same drop
// pattern; seed 0 draws one from the clock.
func NewLossSimulator(percent int, seed int64) DropFunc {
	if percent <= 0 {
		return NeverDrop
	}
	if percent > 100 {
		percent = 100
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return func() bool {
		return rng.Intn(100)+1 <= percent
	}
}
