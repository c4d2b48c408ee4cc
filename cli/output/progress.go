package output

import (
	"math"
	"strings"

	"github.com/pterm/pterm"
)

// SegmentBar renders a per-segment progress bar for one download. The
// bar starts lazily on the first tick, once the segment total is known.
type SegmentBar struct {
	title string
	bar   *pterm.ProgressbarPrinter
	last  int
}

func NewSegmentBar(title string) *SegmentBar {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "download"
	}
	return &SegmentBar{title: title}
}

// Tick moves the bar to delivered out of total segments.
func (b *SegmentBar) Tick(delivered, total uint32) {
	if b == nil {
		return
	}
	if b.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTitle(b.title).
			WithTotal(clampToInt(total)).
			WithShowElapsedTime(false).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			return
		}
		b.bar = bar
	}
	if delta := int(delivered) - b.last; delta > 0 {
		b.bar.Add(delta)
		b.last = int(delivered)
	}
}

// Stop tears the bar down; safe without a prior tick.
func (b *SegmentBar) Stop() {
	if b == nil || b.bar == nil {
		return
	}
	_, _ = b.bar.Stop()
	b.bar = nil
}

func clampToInt(v uint32) int {
	if v == 0 {
		return 1
	}
	if uint64(v) > uint64(math.MaxInt32) {
		return int(math.MaxInt32)
	}
	return int(v)
}
