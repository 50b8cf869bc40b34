package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CSVSink writes fused captions to a CSV file, one row per caption, for
// operators who want a plain transcript of a run without standing up
// SQLite. One file per process lifetime; the caller names it.
type CSVSink struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	startTime time.Time
}

// NewCSVSink creates (or truncates) a CSV transcript file at path.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create transcript file: %w", err)
	}

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write BOM: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "elapsed", "slotIndex", "overlapCount", "videoTimestampMs", "text"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush header: %w", err)
	}

	return &CSVSink{file: f, writer: w, startTime: time.Now()}, nil
}

func (s *CSVSink) RawCaption(int, string, int64, time.Time) {
	// The CSV transcript records only the fused, display-ready timeline;
	// raw per-subtitler captions belong in the SQLite sink if that detail
	// is wanted.
}

func (s *CSVSink) FusedCaption(id, text string, slotIndex, overlapCount int, videoTimestamp int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return
	}
	elapsed := at.Sub(s.startTime)
	minutes := int(elapsed.Minutes())
	seconds := int(elapsed.Seconds()) % 60
	row := []string{
		at.Format("15:04:05"),
		fmt.Sprintf("%d:%02d", minutes, seconds),
		fmt.Sprintf("%d", slotIndex),
		fmt.Sprintf("%d", overlapCount),
		fmt.Sprintf("%d", videoTimestamp),
		text,
	}
	if err := s.writer.Write(row); err != nil {
		slog.Error("export: csv write failed", "err", err)
		return
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		slog.Error("export: csv flush failed", "err", err)
	}
}

func (s *CSVSink) AdminAction(action, detail string, at time.Time) {
	// Admin actions are operational audit trail, not transcript content;
	// they belong in the SQLite sink's admin_actions table.
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
