package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTransferLogSummarize(t *testing.T) {
	dir := t.TempDir()
	tl := NewTransferLog("dataset.bin", dir)

	for _, seq := range []uint32{0, 1, 3, 5} {
		tl.SegmentDelivered(seq)
	}
	tl.SegmentLost(2)
	tl.SegmentLost(4)
	tl.SegmentRecovered(2)

	if err := tl.Summarize(6, 1500*time.Millisecond); err != nil {
		t.Fatalf("summarize failed: %v", err)
	}

	s := tl.Summary()
	if s == nil {
		t.Fatal("summary is nil after Summarize")
	}
	if s.TotalSegments != 6 {
		t.Fatalf("total = %d, want 6", s.TotalSegments)
	}
	if s.SegmentsDelivered != 4 || s.SegmentsLost != 2 || s.SegmentsRecovered != 1 {
		t.Fatalf("counts = %d/%d/%d, want 4/2/1",
			s.SegmentsDelivered, s.SegmentsLost, s.SegmentsRecovered)
	}
	if s.SegmentsUnrecovered != 1 {
		t.Fatalf("unrecovered = %d, want 1", s.SegmentsUnrecovered)
	}
	if s.Complete {
		t.Fatal("summary reports complete with an unrecovered segment")
	}
	if s.RecoveryPercent != 50 {
		t.Fatalf("recovery percent = %v, want 50", s.RecoveryPercent)
	}
	if s.DurationSeconds != 1.5 {
		t.Fatalf("duration = %v, want 1.5", s.DurationSeconds)
	}
	if len(s.Lost) != 2 || s.Lost[0] != 2 || s.Lost[1] != 4 {
		t.Fatalf("lost list = %v, want [2 4]", s.Lost)
	}

	data, err := os.ReadFile(tl.JSONPath())
	if err != nil {
		t.Fatalf("read json artifact: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json artifact does not parse: %v", err)
	}
	if decoded.TransferID != tl.TransferID() {
		t.Fatalf("artifact transfer id = %q, want %q", decoded.TransferID, tl.TransferID())
	}

	text, err := os.ReadFile(tl.TextPath())
	if err != nil {
		t.Fatalf("read text artifact: %v", err)
	}
	for _, want := range []string{
		"Transfer Report - dataset.bin",
		"Total Segments: 6",
		"Segments Unrecovered: 1",
	} {
		if !strings.Contains(string(text), want) {
			t.Fatalf("text artifact missing %q:\n%s", want, text)
		}
	}
}

func TestTransferLogNoLosses(t *testing.T) {
	tl := NewTransferLog("clean.bin", t.TempDir())
	tl.SegmentDelivered(0)
	tl.SegmentDelivered(1)

	if err := tl.Summarize(2, time.Second); err != nil {
		t.Fatalf("summarize failed: %v", err)
	}

	s := tl.Summary()
	if !s.Complete {
		t.Fatal("lossless transfer not marked complete")
	}
	if s.RecoveryPercent != 100 {
		t.Fatalf("recovery percent = %v, want 100", s.RecoveryPercent)
	}
	if s.SuccessPercent != 100 {
		t.Fatalf("success percent = %v, want 100", s.SuccessPercent)
	}
}

func TestHistoryAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.toml")

	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if len(h.List()) != 0 {
		t.Fatalf("fresh history has %d entries", len(h.List()))
	}

	entry := HistoryEntry{
		TransferID:        "11111111-2222-3333-4444-555555555555",
		File:              "dataset.bin",
		FinishedAt:        time.Now().UTC().Truncate(time.Second),
		DurationSeconds:   2.25,
		TotalSegments:     12,
		SegmentsDelivered: 12,
		SuccessPercent:    100,
		Complete:          true,
	}
	if err := h.Append(entry); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	reloaded, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got := reloaded.List()
	if len(got) != 1 {
		t.Fatalf("reloaded %d entries, want 1", len(got))
	}
	if got[0].TransferID != entry.TransferID || got[0].File != entry.File {
		t.Fatalf("entry mismatch: %+v", got[0])
	}
	if !got[0].Complete || got[0].TotalSegments != 12 {
		t.Fatalf("entry mismatch: %+v", got[0])
	}
}
