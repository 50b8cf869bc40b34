package engine

import (
	"fmt"
	"strings"
	"time"
)

// CaptionInput is one caption candidate arriving from a subtitler
// connection, as described by the submission gate.
type CaptionInput struct {
	Text                string
	SendingSubtitlerID  string
	SendingSubtitlerName string
	AutoSent            bool
	ReceivedAt          time.Time
}

// maxCaptionCodeUnits is the 500 code unit per-caption truncation limit.
const maxCaptionCodeUnits = 500

// ErrNoOpenSlot is returned by Submit when no slot, current or recently
// closed, can be matched to the sending subtitler.
var ErrNoOpenSlot = fmt.Errorf("no-open-slot")

// ErrLateCaption is returned when a manual caption arrives after the submit
// deadline of the slot its subtitler is still mapped to. A late manual
// caption with no open-slot mapping gets ErrNoOpenSlot instead.
var ErrLateCaption = fmt.Errorf("late-caption")

// Submit runs the Submission Gate (C6). When fragment mode is inactive, the
// gate is bypassed entirely and the caption goes straight to spectators at
// displayAt = now + delaySec.
func (e *Engine) Submit(in CaptionInput) error {
	e.mu.Lock()
	if !e.fragmentActive {
		delaySec := e.delaySec
		e.mu.Unlock()
		now := e.clock.Now()
		e.out.ToSpectators(CaptionMsg{Type: "caption", Caption: in.Text, DisplayAt: now.Add(time.Duration(delaySec) * time.Second).UnixMilli()})
		return nil
	}

	slotIdx, ok := e.openSlotBySub[in.SendingSubtitlerID]
	if !ok {
		slotIdx, ok = e.fallbackSlot(in)
		if !ok {
			e.mu.Unlock()
			return ErrNoOpenSlot
		}
	}
	if slotIdx < 0 || slotIdx >= len(e.slots) {
		e.mu.Unlock()
		return ErrNoOpenSlot
	}
	slot := e.slots[slotIdx]

	deadline := slot.StartAt.Add(time.Duration(e.cfg.SlotDuration+e.derived.Grace) * time.Second)
	if !in.AutoSent && in.ReceivedAt.After(deadline) {
		e.mu.Unlock()
		return ErrLateCaption
	}

	bodyEnd := time.Duration(e.cfg.SlotDuration) * time.Second
	elapsed := in.ReceivedAt.Sub(slot.StartAt)
	if elapsed > bodyEnd {
		elapsed = bodyEnd
	}
	videoTimestamp := slot.StartVideoOffsetMs + elapsed.Milliseconds()

	text := truncateCodeUnits(strings.TrimSpace(in.Text), maxCaptionCodeUnits)
	slot.Captions = append(slot.Captions, RawCaption{
		Text:           text,
		VideoTimestamp: videoTimestamp,
		ReceivedAt:     in.ReceivedAt,
		AutoSent:       in.AutoSent,
	})
	senderID := in.SendingSubtitlerID
	e.mu.Unlock()

	e.exp.RawCaption(slotIdx, text, videoTimestamp, in.ReceivedAt)
	e.out.ToAdmins(FragmentRawCaptionMsg{Type: "fragment:raw-caption", Caption: text, SlotIndex: slotIdx})
	e.out.ToSubtitlersExcept(senderID, CaptionMsg{Type: "caption", Caption: text})
	return nil
}

// fallbackSlot implements the 800ms-close-race fallback: scan slot history
// most-recent-first for a slot assigned to this subtitler. Caller must hold
// the lock.
func (e *Engine) fallbackSlot(in CaptionInput) (int, bool) {
	for i := len(e.slots) - 1; i >= 0; i-- {
		s := e.slots[i]
		if s.SubtitlerID != in.SendingSubtitlerID {
			continue
		}
		if in.AutoSent {
			return i, true
		}
		deadline := s.StartAt.Add(time.Duration(e.cfg.SlotDuration+e.derived.Grace) * time.Second)
		if !in.ReceivedAt.After(deadline) {
			return i, true
		}
		return 0, false
	}
	return 0, false
}

// truncateCodeUnits truncates s to at most n UTF-16 code units, matching the
// spec's "truncate to 500 code units" rule for a UTF-8 Go string by
// approximating with runes.
func truncateCodeUnits(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
