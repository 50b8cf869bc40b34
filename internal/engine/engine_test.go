package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/christian-lee/subcoord/internal/clock"
)

// recordingBroadcaster is a test double satisfying Broadcaster that records
// every send for later inspection.
type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMsg
}

type sentMsg struct {
	target string // connID, or "admins"/"subtitlers"/"spectators"
	msg    any
}

func (b *recordingBroadcaster) record(target string, msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMsg{target: target, msg: msg})
}

func (b *recordingBroadcaster) SendTo(connID string, msg any)               { b.record(connID, msg) }
func (b *recordingBroadcaster) ToAdmins(msg any)                           { b.record("admins", msg) }
func (b *recordingBroadcaster) ToSubtitlers(msg any)                       { b.record("subtitlers", msg) }
func (b *recordingBroadcaster) ToSubtitlersExcept(except string, msg any)  { b.record("subtitlers-except-"+except, msg) }
func (b *recordingBroadcaster) ToSpectators(msg any)                       { b.record("spectators", msg) }

func (b *recordingBroadcaster) fusedCaptions() []FragmentFusedCaptionMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []FragmentFusedCaptionMsg
	for _, s := range b.sent {
		if m, ok := s.msg.(FragmentFusedCaptionMsg); ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *recordingBroadcaster) wordEvents() []CaptionWordMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []CaptionWordMsg
	for _, s := range b.sent {
		if m, ok := s.msg.(CaptionWordMsg); ok {
			out = append(out, m)
		}
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

// Scenario B: D=6, O=0, g=0, R=1. S1 sends "Bonjour." Slot 0 finalizes
// immediately with no predecessor.
func TestScenarioB_FirstSlotImmediateEmit(t *testing.T) {
	c := clock.New()
	out := &recordingBroadcaster{}
	e := New(c, out, 50*time.Millisecond)

	e.Join("s1", "Subtitler One")
	if err := e.StartLive(6); err != nil {
		t.Fatal(err)
	}
	cfg := Config{SegmentDuration: 1, DelaySec: 6, SlotDuration: 6, OverlapDuration: 0, GracePercent: 0, RequiredSubtitlers: 1}
	if err := e.StartFragment(cfg); err != nil {
		t.Fatal(err)
	}

	if err := e.Submit(CaptionInput{Text: "Bonjour.", SendingSubtitlerID: "s1", ReceivedAt: c.Now()}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 8*time.Second, func() bool { return len(out.fusedCaptions()) >= 1 })

	fused := out.fusedCaptions()
	if fused[0].Caption != "Bonjour." {
		t.Fatalf("expected \"Bonjour.\", got %q", fused[0].Caption)
	}
	if fused[0].OverlapCount != 0 {
		t.Fatalf("expected overlapCount 0 for slot 0, got %d", fused[0].OverlapCount)
	}
}

// Scenario C: D=10, g=20 -> G=2, deadline=12s. Grace end fires at t=12s;
// at t=12.3s a late auto-send with autoSent=true is accepted via fallback.
func TestScenarioC_LateAutoSendFallback(t *testing.T) {
	c := clock.New()
	out := &recordingBroadcaster{}
	e := New(c, out, 50*time.Millisecond)

	e.Join("s1", "Subtitler One")
	e.Join("s2", "Subtitler Two")
	if err := e.StartLive(10); err != nil {
		t.Fatal(err)
	}
	// D=2,g=50 -> G=1, deadline=3s, S=2(O=0), minRequired=ceil(3/2)=2, R=2.
	// s1's next slot (index 2) starts at 4s, so between 3s and 4s s1 has no
	// open-slot entry.
	cfg := Config{SegmentDuration: 1, DelaySec: 10, SlotDuration: 2, OverlapDuration: 0, GracePercent: 50, RequiredSubtitlers: 2}
	if err := e.StartFragment(cfg); err != nil {
		t.Fatal(err)
	}

	// wait until slot 0's grace end has fired and cleared the open-slot map
	waitFor(t, 5*time.Second, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		_, open := e.openSlotBySub["s1"]
		return !open && len(e.slots) >= 1
	})

	err := e.Submit(CaptionInput{
		Text:               "dernier mot",
		SendingSubtitlerID: "s1",
		AutoSent:           true,
		ReceivedAt:         c.Now(),
	})
	if err != nil {
		t.Fatalf("expected late auto-send to be accepted via fallback, got error: %v", err)
	}

	e.mu.Lock()
	got := e.slots[0].rawText()
	e.mu.Unlock()
	if got != "dernier mot" {
		t.Fatalf("expected fallback caption appended to slot 0, got %q", got)
	}
}

// Scenario F: finalText = "a b c d", D=8s, wordCount=4 -> interval=2000ms.
func TestScenarioF_WordPacedDelivery(t *testing.T) {
	c := clock.New()
	out := &recordingBroadcaster{}
	e := New(c, out, 50*time.Millisecond)
	e.cfg = Config{SlotDuration: 8}
	e.delaySec = 0
	e.fragmentActive = true
	e.liveStartedAt = c.Now()

	slot := Slot{Index: 0, StartAt: c.Now(), FinalText: "a b c d"}
	e.schedulePacer(slot, e.runGeneration)

	// the last word is scheduled at 3*2000ms = 6s
	waitFor(t, 8*time.Second, func() bool { return len(out.wordEvents()) == 4 })

	words := out.wordEvents()
	for i, w := range words {
		if w.WordIndex != i {
			t.Fatalf("word %d has wordIndex %d", i, w.WordIndex)
		}
	}
	if !words[3].IsLast {
		t.Fatal("expected last word to have isLast=true")
	}
	for i := 1; i < len(words); i++ {
		if i > 0 && words[i].WordIndex <= words[i-1].WordIndex {
			t.Fatal("wordIndex must strictly order events")
		}
	}
}

func TestSubmit_NonFragmentModeBypassesGate(t *testing.T) {
	c := clock.New()
	out := &recordingBroadcaster{}
	e := New(c, out, 50*time.Millisecond)
	if err := e.StartLive(5); err != nil {
		t.Fatal(err)
	}

	if err := e.Submit(CaptionInput{Text: "hello", SendingSubtitlerID: "s1", ReceivedAt: c.Now()}); err != nil {
		t.Fatal(err)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	found := false
	for _, s := range out.sent {
		if s.target == "spectators" {
			if m, ok := s.msg.(CaptionMsg); ok && m.Caption == "hello" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected bypassed caption to reach spectators directly")
	}
}

func TestSubmit_NoOpenSlotRejected(t *testing.T) {
	c := clock.New()
	out := &recordingBroadcaster{}
	e := New(c, out, 50*time.Millisecond)
	e.Join("s1", "One")
	if err := e.StartLive(6); err != nil {
		t.Fatal(err)
	}
	cfg := Config{SegmentDuration: 1, DelaySec: 6, SlotDuration: 6, RequiredSubtitlers: 1}
	if err := e.StartFragment(cfg); err != nil {
		t.Fatal(err)
	}

	err := e.Submit(CaptionInput{Text: "x", SendingSubtitlerID: "unknown-subtitler", ReceivedAt: c.Now()})
	if err != ErrNoOpenSlot {
		t.Fatalf("expected ErrNoOpenSlot, got %v", err)
	}
}
