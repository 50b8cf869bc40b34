package engine

import (
	"strings"
	"time"
)

const groupPacer = "pacer"

// schedulePacer implements the Delivery Pacer (C8) for a just-finalized
// slot, aligning word emission to slot.startAt + delaySec.
func (e *Engine) schedulePacer(slot Slot, gen int64) {
	e.mu.Lock()
	delaySec := e.delaySec
	slotDurationMs := int64(e.cfg.SlotDuration) * 1000
	now := e.clock.Now()
	e.mu.Unlock()

	baseDisplayAt := slot.StartAt.Add(time.Duration(delaySec) * time.Second)
	delay := baseDisplayAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	e.emitWords(slot, gen, delay, slotDurationMs)
}

// schedulePacerNow is the best-effort catch-up path used by
// sendRemainingSlots: words are scheduled starting immediately.
func (e *Engine) schedulePacerNow(slot Slot, gen int64) {
	e.mu.Lock()
	slotDurationMs := int64(e.cfg.SlotDuration) * 1000
	e.mu.Unlock()
	e.emitWords(slot, gen, 0, slotDurationMs)
}

// emitWords splits finalText on whitespace and schedules one broadcast per
// word, spaced intervalMs = floor(slotDurationMs / wordCount) apart,
// starting at delay.
func (e *Engine) emitWords(slot Slot, gen int64, delay time.Duration, slotDurationMs int64) {
	words := strings.Fields(slot.FinalText)
	total := len(words)
	if total == 0 {
		return
	}
	intervalMs := slotDurationMs / int64(total)
	captionID := newCaptionID()

	for k, word := range words {
		k, word := k, word
		offset := delay + time.Duration(intervalMs)*time.Duration(k)*time.Millisecond
		e.clock.Schedule(offset, groupPacer, func() {
			e.mu.Lock()
			stillCurrent := e.runGeneration == gen
			e.mu.Unlock()
			if !stillCurrent {
				return
			}
			e.out.ToSpectators(CaptionWordMsg{
				Type:           "caption:word",
				ID:             captionID,
				Word:           word,
				WordIndex:      k,
				TotalWords:     total,
				IsLast:         k == total-1,
				VideoTimestamp: slot.StartVideoOffsetMs,
				SlotIndex:      slot.Index,
				SubtitlerName:  slot.SubtitlerName,
				SlotDurationMs: slotDurationMs,
			})
		})
	}
}
