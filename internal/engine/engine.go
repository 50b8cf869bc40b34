package engine

import "time"

// LiveStatus is the snapshot returned by GET /live/status.
type LiveStatus struct {
	Running        bool
	LiveStartedAt  int64
	Mode           string
	DelaySec       int
	FragmentActive bool
	MinSubtitlers  int
}

func (e *Engine) Status() LiveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	mode := string(ModeStopped)
	if e.running {
		mode = string(ModeLive)
	}
	var startedAt int64
	if e.running {
		startedAt = e.liveStartedAt.Unix()
	}
	return LiveStatus{
		Running:        e.running,
		LiveStartedAt:  startedAt,
		Mode:           mode,
		DelaySec:       e.delaySec,
		FragmentActive: e.fragmentActive,
		MinSubtitlers:  e.derived.MinRequired,
	}
}

// MinDelay returns the currently configured run's minDelay, or 0 if no
// config has ever been validated.
func (e *Engine) MinDelay() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.derived.MinDelay
}

// FragmentAdminStatus returns the aggregate view sent to admin connections.
func (e *Engine) FragmentAdminStatus() FragmentAdminStatusMsg {
	e.mu.Lock()
	defer e.mu.Unlock()
	return FragmentAdminStatusMsg{
		FragmentStatusMsg: e.commonStatusLocked(),
		RawCaptionsCount:  e.rawCaptionsCountLocked(),
		FusedCaptionsCount: len(e.fusedHistory),
		SlotsCount:        len(e.slots),
	}
}

// FragmentStatusFor returns the individualized status for one subtitler
// connection, per §9's per-subtitler countdown rule.
func (e *Engine) FragmentStatusFor(subtitlerID string) FragmentStatusMsg {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg := e.commonStatusLocked()

	slotIdx, hasOpen := e.openSlotBySub[subtitlerID]
	if hasOpen && slotIdx < len(e.slots) {
		slot := e.slots[slotIdx]
		deadline := slot.StartAt.Add(time.Duration(e.cfg.SlotDuration+e.derived.Grace) * time.Second)
		remaining := deadline.Sub(e.clock.Now())
		if remaining < 0 {
			remaining = 0
		}
		msg.SecondsRemaining = int(remaining / time.Second)
		msg.IsMyTurn = true
		msg.InGracePeriod = e.clock.Now().After(slot.StartAt.Add(time.Duration(e.cfg.SlotDuration) * time.Second))
		return msg
	}

	// not open: countdown to this subtitler's next assigned slot start.
	active := e.activeSubtitlers()
	if len(active) == 0 || !e.fragmentActive {
		return msg
	}
	idx := -1
	for i, s := range active {
		if s.ID == subtitlerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return msg
	}
	n := len(active)
	i := e.currentSlotIndex
	for offset := 0; offset < n; offset++ {
		if (i+offset)%n == idx {
			nextStart := e.approxSlotStartLocked(i + offset)
			remaining := nextStart.Sub(e.clock.Now())
			if remaining < 0 {
				remaining = 0
			}
			msg.SecondsRemaining = int(remaining / time.Second)
			break
		}
	}
	return msg
}

// approxSlotStartLocked estimates slot i's start time from the most recent
// started slot and the stride, for subtitlers whose slot hasn't begun yet.
// Caller must hold the lock.
func (e *Engine) approxSlotStartLocked(i int) time.Time {
	if len(e.slots) == 0 {
		return e.clock.Now()
	}
	last := e.slots[len(e.slots)-1]
	deltaSlots := i - last.Index
	return last.StartAt.Add(time.Duration(deltaSlots*e.derived.Stride) * time.Second)
}

func (e *Engine) commonStatusLocked() FragmentStatusMsg {
	active := e.activeSubtitlers()
	summaries := make([]SubtitlerSummary, 0, len(active))
	for _, s := range active {
		summaries = append(summaries, SubtitlerSummary{ID: s.ID, Name: s.Name})
	}
	cur := e.currentSubtitler()
	curID, curName := "", ""
	if cur != nil {
		curID, curName = cur.ID, cur.Name
	}
	return FragmentStatusMsg{
		Type:                 "fragment:status",
		Active:               e.fragmentActive,
		SlotDuration:         e.cfg.SlotDuration,
		GracePeriodPercent:   e.cfg.GracePercent,
		RequiredSubtitlers:   e.cfg.RequiredSubtitlers,
		OverlapDuration:      e.cfg.OverlapDuration,
		CurrentSlotIndex:     e.currentSlotIndex,
		CurrentSubtitlerID:   curID,
		CurrentSubtitlerName: curName,
		SubtitlerCount:       len(active),
		Subtitlers:           summaries,
	}
}

func (e *Engine) rawCaptionsCountLocked() int {
	n := 0
	for _, s := range e.slots {
		n += len(s.Captions)
	}
	return n
}

// broadcastStatus sends the aggregate status to admins and an
// individualized status to each connected subtitler.
func (e *Engine) broadcastStatus() {
	e.out.ToAdmins(e.FragmentAdminStatus())
	e.mu.Lock()
	ids := make([]string, 0, len(e.subtitlers))
	for id := range e.subtitlers {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.out.SendTo(id, e.FragmentStatusFor(id))
	}
}

// RawCaptions returns a slot-indexed dump of raw captions, for the
// /fragment/raw-captions export endpoint.
func (e *Engine) RawCaptions() map[int][]RawCaption {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int][]RawCaption, len(e.slots))
	for _, s := range e.slots {
		if len(s.Captions) > 0 {
			out[s.Index] = append([]RawCaption(nil), s.Captions...)
		}
	}
	return out
}

// FusedHistory returns the emitted fused-caption history.
func (e *Engine) FusedHistory() []FusedCaption {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FusedCaption(nil), e.fusedHistory...)
}
