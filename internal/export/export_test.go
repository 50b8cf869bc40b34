package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNoopSinkDoesNothing(t *testing.T) {
	var s Sink = NoopSink{}
	s.RawCaption(0, "hello", 0, time.Now())
	s.FusedCaption("id", "hello", 0, 0, 0, time.Now())
	s.AdminAction("start", "", time.Now())
	if err := s.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSQLiteSinkPersists(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSQLiteSink(filepath.Join(dir, "export.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	now := time.Now()
	sink.RawCaption(0, "hello world", 1000, now)
	sink.FusedCaption("caption-1", "hello world", 0, 0, 1000, now)
	sink.AdminAction("live:start", "delaySec=10", now)
}

func TestCSVSinkPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.csv")
	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	sink.FusedCaption("caption-1", "Les grandes villes sont Marseille,", 0, 0, 0, now)
	sink.FusedCaption("caption-2", "Nice et Toulon", 1, 3, 4000, now.Add(10*time.Second))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := strings.TrimPrefix(string(raw), "﻿")
	if !strings.Contains(body, "Les grandes villes sont Marseille,") {
		t.Fatalf("expected first caption row, got %s", body)
	}
	if !strings.Contains(body, "Nice et Toulon") {
		t.Fatalf("expected second caption row, got %s", body)
	}
}
