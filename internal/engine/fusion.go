package engine

// finalize implements Finalize(slotIndex i) from §4.7, called after the
// settle delay following slot i's grace end.
func (e *Engine) finalize(i int, gen int64) {
	e.mu.Lock()
	if e.runGeneration != gen || i >= len(e.slots) {
		e.mu.Unlock()
		return
	}
	slot := e.slots[i]
	rawText := slot.rawText()

	if i == 0 {
		slot.Sent = true
		if rawText == "" {
			e.mu.Unlock()
			return
		}
		slot.FinalText = rawText
		record := FusedCaption{
			ID:             newCaptionID(),
			Text:           rawText,
			CreatedAt:      e.clock.Now(),
			VideoTimestamp: slot.StartVideoOffsetMs,
			SlotIndex:      slot.Index,
			NextSlotIndex:  slot.Index + 1,
			OverlapCount:   0,
		}
		e.fusedHistory = append(e.fusedHistory, record)
		slotCopy := *slot
		e.mu.Unlock()

		e.exp.FusedCaption(record.ID, rawText, slot.Index, 0, slot.StartVideoOffsetMs, record.CreatedAt)
		e.out.ToAdmins(FragmentFusedCaptionMsg{Type: "fragment:fused-caption", Caption: rawText, OverlapCount: 0})
		e.schedulePacer(slotCopy, gen)
		return
	}

	prev := e.slots[i-1]
	prevRaw := prev.rawText()
	curTokens := tokenize(rawText)
	prevTokens := tokenize(prevRaw)

	overlapLen := 0
	if m, ok := findOverlap(prevTokens, curTokens); ok {
		overlapLen = m.K
	}
	slot.OverlapFromPrev = overlapLen
	slot.HasOverlap = true

	if prev.Sent {
		e.mu.Unlock()
		return
	}
	if prevRaw == "" {
		prev.Sent = true
		prev.FinalText = ""
		e.mu.Unlock()
		return
	}

	drop := prev.OverlapFromPrev
	if !prev.HasOverlap {
		drop = 0
	}
	// drop is prev's overlap against ITS predecessor, set by an earlier
	// finalize; the overlap just computed above belongs to slot i, not prev.
	wordsToSend := prevTokens
	if drop > 0 && drop <= len(wordsToSend) {
		wordsToSend = wordsToSend[drop:]
	}
	prev.FinalText = detokenize(wordsToSend)
	prev.Sent = true

	finalText := prev.FinalText
	record := FusedCaption{
		ID:             newCaptionID(),
		Text:           finalText,
		CreatedAt:      e.clock.Now(),
		VideoTimestamp: prev.StartVideoOffsetMs,
		SlotIndex:      prev.Index,
		NextSlotIndex:  i,
		OverlapCount:   drop,
	}
	e.fusedHistory = append(e.fusedHistory, record)
	prevCopy := *prev
	e.mu.Unlock()

	e.exp.FusedCaption(record.ID, finalText, prev.Index, drop, prev.StartVideoOffsetMs, record.CreatedAt)
	e.out.ToAdmins(FragmentFusedCaptionMsg{Type: "fragment:fused-caption", Caption: finalText, OverlapCount: drop})
	if finalText != "" {
		e.schedulePacer(prevCopy, gen)
	}
}

// sendRemainingSlots flushes every unsent slot, oldest to newest, emitting
// non-empty final text immediately (scheduledAt = now) as a best-effort
// catch-up on stop.
func (e *Engine) sendRemainingSlots() {
	e.mu.Lock()
	gen := e.runGeneration
	var toSend []Slot
	for _, slot := range e.slots {
		if slot.Sent {
			continue
		}
		raw := slot.rawText()
		drop := slot.OverlapFromPrev
		if !slot.HasOverlap {
			drop = 0
		}
		tokens := tokenize(raw)
		if drop > 0 && drop <= len(tokens) {
			tokens = tokens[drop:]
		}
		slot.FinalText = detokenize(tokens)
		slot.Sent = true
		if slot.FinalText != "" {
			toSend = append(toSend, *slot)
		}
	}
	e.mu.Unlock()

	for _, slot := range toSend {
		e.schedulePacerNow(slot, gen)
	}
}
