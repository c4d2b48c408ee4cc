package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// HistoryEntry is one finished transfer as kept in the history roster.
type HistoryEntry struct {
	TransferID        string    `toml:"transfer_id"`
	File              string    `toml:"file"`
	FinishedAt        time.Time `toml:"finished_at"`
	DurationSeconds   float64   `toml:"duration_seconds"`
	TotalSegments     uint32    `toml:"total_segments"`
	SegmentsDelivered int       `toml:"segments_delivered"`
	SegmentsLost      int       `toml:"segments_lost"`
	SegmentsRecovered int       `toml:"segments_recovered"`
	SuccessPercent    float64   `toml:"success_percent"`
	Complete          bool      `toml:"complete"`
}

func NewHistoryEntry(s *Summary) HistoryEntry {
	return HistoryEntry{
		TransferID:        s.TransferID,
		File:              s.File,
		FinishedAt:        s.FinishedAt,
		DurationSeconds:   s.DurationSeconds,
		TotalSegments:     s.TotalSegments,
		SegmentsDelivered: s.SegmentsDelivered,
		SegmentsLost:      s.SegmentsLost,
		SegmentsRecovered: s.SegmentsRecovered,
		SuccessPercent:    s.SuccessPercent,
		Complete:          s.Complete,
	}
}

// History is the TOML-backed roster of past transfers.
type History struct {
	filePath string
	Entries  []HistoryEntry `toml:"transfers"`
}

func OpenHistory(filePath string) (*History, error) {
	h := &History{filePath: filePath}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return nil, err
		}
		f, err := os.Create(filePath)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	if err := h.loadFromFile(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) loadFromFile() error {
	data, err := os.ReadFile(h.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return toml.Unmarshal(data, h)
}

func (h *History) saveToFile() error {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(h); err != nil {
		return err
	}
	if err := os.WriteFile(h.filePath, buf.Bytes(), 0o644); err != nil {
		return errors.New("failed to save transfer history: " + err.Error())
	}
	return nil
}

func (h *History) Append(e HistoryEntry) error {
	h.Entries = append(h.Entries, e)
	return h.saveToFile()
}

func (h *History) List() []HistoryEntry {
	return h.Entries
}
