package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Summary is the final accounting of one download.
type Summary struct {
	TransferID          string    `json:"transfer_id"`
	File                string    `json:"file"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	DurationSeconds     float64   `json:"duration_seconds"`
	TotalSegments       uint32    `json:"total_segments"`
	SegmentsDelivered   int       `json:"segments_delivered"`
	SegmentsLost        int       `json:"segments_lost"`
	SegmentsRecovered   int       `json:"segments_recovered"`
	SegmentsUnrecovered int       `json:"segments_unrecovered"`
	SuccessPercent      float64   `json:"success_percent"`
	LossPercent         float64   `json:"loss_percent"`
	RecoveryPercent     float64   `json:"recovery_percent"`
	Complete            bool      `json:"complete"`
	Delivered           []uint32  `json:"delivered_segments"`
	Lost                []uint32  `json:"lost_segments"`
	Recovered           []uint32  `json:"recovered_segments"`
}

// TransferLog accumulates segment outcomes for one download and, on
// Summarize, writes a JSON artifact plus a human-readable text report
// under the report directory.
type TransferLog struct {
	file      string
	dir       string
	id        string
	startedAt time.Time

	delivered map[uint32]struct{}
	lost      map[uint32]struct{}
	recovered map[uint32]struct{}

	summary  *Summary
	jsonPath string
	textPath string
}

func NewTransferLog(fileName, dir string) *TransferLog {
	return &TransferLog{
		file:      fileName,
		dir:       dir,
		id:        uuid.New().String(),
		startedAt: time.Now(),
		delivered: make(map[uint32]struct{}),
		lost:      make(map[uint32]struct{}),
		recovered: make(map[uint32]struct{}),
	}
}

func (tl *TransferLog) TransferID() string { return tl.id }

func (tl *TransferLog) SegmentDelivered(seq uint32) { tl.delivered[seq] = struct{}{} }
func (tl *TransferLog) SegmentLost(seq uint32)      { tl.lost[seq] = struct{}{} }
func (tl *TransferLog) SegmentRecovered(seq uint32) { tl.recovered[seq] = struct{}{} }

// Summary returns the computed summary, or nil before Summarize ran.
func (tl *TransferLog) Summary() *Summary { return tl.summary }

// JSONPath and TextPath report where Summarize wrote its artifacts.
func (tl *TransferLog) JSONPath() string { return tl.jsonPath }
func (tl *TransferLog) TextPath() string { return tl.textPath }

func (tl *TransferLog) Summarize(total uint32, elapsed time.Duration) error {
	unrecovered := 0
	for seq := range tl.lost {
		if _, ok := tl.recovered[seq]; !ok {
			unrecovered++
		}
	}

	s := &Summary{
		TransferID:          tl.id,
		File:                tl.file,
		StartedAt:           tl.startedAt,
		FinishedAt:          time.Now(),
		DurationSeconds:     elapsed.Seconds(),
		TotalSegments:       total,
		SegmentsDelivered:   len(tl.delivered),
		SegmentsLost:        len(tl.lost),
		SegmentsRecovered:   len(tl.recovered),
		SegmentsUnrecovered: unrecovered,
		Complete:            unrecovered == 0,
		Delivered:           sortedSeqs(tl.delivered),
		Lost:                sortedSeqs(tl.lost),
		Recovered:           sortedSeqs(tl.recovered),
	}
	if total > 0 {
		s.SuccessPercent = float64(len(tl.delivered)) / float64(total) * 100
		s.LossPercent = float64(len(tl.lost)) / float64(total) * 100
	}
	if len(tl.lost) > 0 {
		s.RecoveryPercent = float64(len(tl.recovered)) / float64(len(tl.lost)) * 100
	} else {
		s.RecoveryPercent = 100
	}
	tl.summary = s

	if err := os.MkdirAll(tl.dir, 0o755); err != nil {
		return err
	}

	stamp := tl.startedAt.Format("20060102_150405")
	base := filepath.Base(tl.file)
	tl.jsonPath = filepath.Join(tl.dir, fmt.Sprintf("transfer_%s_%s.json", base, stamp))
	tl.textPath = filepath.Join(tl.dir, fmt.Sprintf("transfer_%s_%s.txt", base, stamp))

	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tl.jsonPath, data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(tl.textPath, []byte(renderText(s)), 0o644)
}

func renderText(s *Summary) string {
	return fmt.Sprintf(`Transfer Report - %s
Transfer ID: %s
Started: %s
Finished: %s
Duration: %.2f seconds

Statistics:
- Total Segments: %d
- Segments Delivered: %d (%.1f%%)
- Segments Lost: %d (%.1f%%)
- Segments Recovered: %d (%.1f%% of lost)
- Segments Unrecovered: %d
`,
		s.File,
		s.TransferID,
		s.StartedAt.Format(time.RFC3339),
		s.FinishedAt.Format(time.RFC3339),
		s.DurationSeconds,
		s.TotalSegments,
		s.SegmentsDelivered, s.SuccessPercent,
		s.SegmentsLost, s.LossPercent,
		s.SegmentsRecovered, s.RecoveryPercent,
		s.SegmentsUnrecovered,
	)
}

func sortedSeqs(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for seq := range set {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ Reporter = (*TransferLog)(nil)
