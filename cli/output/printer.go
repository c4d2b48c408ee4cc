package output

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/mateuskih/Trabalho-1-UDP/pkg/metrics"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/report"
)

// Printer renders structured CLI messages without relying on the logger.
type Printer struct {
	mu sync.Mutex
}

func NewPrinter() *Printer {
	return &Printer{}
}

func (p *Printer) Info(msg string, fields map[string]any) {
	p.printWith(pterm.Info, msg, fields)
}

func (p *Printer) Success(msg string, fields map[string]any) {
	p.printWith(pterm.Success, msg, fields)
}

func (p *Printer) Error(msg string, fields map[string]any) {
	p.printWith(pterm.Error, msg, fields)
}

func (p *Printer) Warn(msg string, fields map[string]any) {
	p.printWith(pterm.Warning, msg, fields)
}

func (p *Printer) printWith(logger pterm.PrefixPrinter, msg string, fields map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(fields) == 0 {
		logger.Println(msg)
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	logger.Println(msg)
	for _, k := range keys {
		pterm.Printf("  %s: %v\n", k, fields[k])
	}
}

// RenderSummary prints the post-transfer report table.
func (p *Printer) RenderSummary(s *report.Summary) {
	if s == nil {
		return
	}
	status := "complete"
	if !s.Complete {
		status = "incomplete"
	}
	data := pterm.TableData{
		{"Field", "Value"},
		{"File", s.File},
		{"Transfer ID", s.TransferID},
		{"Status", status},
		{"Total Segments", fmt.Sprintf("%d", s.TotalSegments)},
		{"Delivered", fmt.Sprintf("%d (%s)", s.SegmentsDelivered, formatPercent(s.SuccessPercent))},
		{"Lost In Stream", fmt.Sprintf("%d (%s)", s.SegmentsLost, formatPercent(s.LossPercent))},
		{"Recovered", fmt.Sprintf("%d (%s)", s.SegmentsRecovered, formatPercent(s.RecoveryPercent))},
		{"Unrecovered", fmt.Sprintf("%d", s.SegmentsUnrecovered)},
		{"Duration", formatDuration(time.Duration(s.DurationSeconds * float64(time.Second)))},
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pterm.Println()
	pterm.DefaultSection.Println("Transfer Report")
	fmt.Println(table)
}

// RenderServerStats prints the daemon's final metrics snapshot.
func (p *Printer) RenderServerStats(snap metrics.ServerSnapshot) {
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Sessions Started", fmt.Sprintf("%d", snap.SessionsStarted)},
		{"Sessions Completed", fmt.Sprintf("%d", snap.SessionsCompleted)},
		{"Sessions Aborted", fmt.Sprintf("%d", snap.SessionsAborted)},
		{"Segments Sent", fmt.Sprintf("%d", snap.SegmentsSent)},
		{"Retransmissions", fmt.Sprintf("%d (%s)", snap.Retransmissions, formatPercent(snap.RetransmitRate*100))},
		{"Recovery Resends", fmt.Sprintf("%d", snap.RecoveryResends)},
		{"Errors Sent", fmt.Sprintf("%d", snap.ErrorsSent)},
		{"Invalid Frames", fmt.Sprintf("%d", snap.InvalidFrames)},
		{"Queue Drops", fmt.Sprintf("%d", snap.QueueDrops)},
		{"ACKs Received", fmt.Sprintf("%d", snap.AcksReceived)},
		{"Bytes Sent", formatBytes(snap.BytesSent)},
		{"Throughput", formatRate(snap.ThroughputBps)},
		{"Uptime", formatDuration(snap.Elapsed)},
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pterm.Println()
	pterm.DefaultSection.Println("Server Stats")
	fmt.Println(table)
}

func formatBytes(b uint64) string {
	const kb = 1024
	const mb = kb * 1024
	const gb = mb * 1024
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(kb))
	case b > 0:
		return fmt.Sprintf("%d B", b)
	default:
		return "0 B"
	}
}

func formatRate(bps float64) string {
	if bps <= 0 {
		return "--"
	}
	return formatBytes(uint64(bps)) + "/s"
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return d.Truncate(100 * time.Millisecond).String()
}

func formatPercent(v float64) string {
	if v <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", v)
}
