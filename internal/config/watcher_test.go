package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReload_FreezesSlotGeometryDuringActiveRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	body := "server:\n  port: 8899\nslot:\n  slot_duration: 10\n  required_subtitlers: 3\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	frozen := true
	hc.SetFrozenCheck(func() bool { return frozen })

	body2 := "server:\n  port: 9001\nslot:\n  slot_duration: 20\n  required_subtitlers: 5\n"
	if err := os.WriteFile(path, []byte(body2), 0644); err != nil {
		t.Fatal(err)
	}
	hc.reload()

	got := hc.Get()
	if got.Server.Port != 9001 {
		t.Fatalf("expected non-geometry field to still apply, got port %d", got.Server.Port)
	}
	if got.Slot.SlotDuration != 10 || got.Slot.RequiredSubtitlers != 3 {
		t.Fatalf("expected slot geometry held at pre-reload values while frozen, got %+v", got.Slot)
	}
}

func TestReload_AppliesSlotGeometryWhenNotFrozen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	body := "server:\n  port: 8899\nslot:\n  slot_duration: 10\n  required_subtitlers: 3\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	hc.SetFrozenCheck(func() bool { return false })

	body2 := "server:\n  port: 8899\nslot:\n  slot_duration: 20\n  required_subtitlers: 5\n"
	if err := os.WriteFile(path, []byte(body2), 0644); err != nil {
		t.Fatal(err)
	}
	hc.reload()

	got := hc.Get()
	if got.Slot.SlotDuration != 20 || got.Slot.RequiredSubtitlers != 5 {
		t.Fatalf("expected slot geometry to update when not frozen, got %+v", got.Slot)
	}
}
