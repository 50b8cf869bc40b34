package engine

import (
	"fmt"
	"time"
)

const groupSlots = "slots"
const groupStride = "stride"
const groupStatusTicker = "status-ticker"

// StartLive begins a run: it records liveStartedAt and the initial
// delaySec. It does not by itself start the slot scheduler — call
// StartFragment for that — matching the control surface's separate
// /live/start and /fragment/start routes.
func (e *Engine) StartLive(delaySec int) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errAlreadyRunning
	}
	e.running = true
	e.liveStartedAt = e.clock.Now()
	e.delaySec = delaySec
	e.mu.Unlock()

	e.out.ToAdmins(LiveStatusMsg{Type: "live", Status: "started", DelaySec: delaySec, LiveStartedAt: e.liveStartedAt.Unix()})
	return nil
}

// StopLive stops the run, stopping the fragment scheduler first if active.
func (e *Engine) StopLive() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return errNotRunning
	}
	wasFragment := e.fragmentActive
	e.mu.Unlock()

	if wasFragment {
		e.StopFragment()
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.out.ToAdmins(LiveStatusMsg{Type: "live", Status: "stopped"})
	return nil
}

// SetDelay enforces delaySec >= minDelay for an active run and <= maxDelay
// always.
func (e *Engine) SetDelay(delaySec int) error {
	e.mu.Lock()
	if delaySec > e.maxDelaySec {
		e.mu.Unlock()
		return fmt.Errorf("delaySec %d exceeds maxDelaySec %d", delaySec, e.maxDelaySec)
	}
	if e.fragmentActive && delaySec < e.derived.MinDelay {
		e.mu.Unlock()
		return fmt.Errorf("delaySec %d below minDelay %d for the active run", delaySec, e.derived.MinDelay)
	}
	e.delaySec = delaySec
	e.mu.Unlock()

	e.out.ToAdmins(ConfigMsg{Type: "config", DelaySec: delaySec})
	return nil
}

// StartFragment validates cfg and, if enough subtitlers are present,
// begins the overlapping slot scheduler. If fewer than R subtitlers are
// connected it parks in "waiting" and rechecks on every stride tick; a
// roster change does not trigger a recheck, so the first slot starts at the
// first tick after R subtitlers are present, not at the moment they join.
func (e *Engine) StartFragment(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	derived := cfg.Derive()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return errNotRunning
	}
	if e.fragmentActive {
		e.mu.Unlock()
		return fmt.Errorf("fragment mode already active")
	}
	if e.delaySec < derived.MinDelay {
		e.mu.Unlock()
		return fmt.Errorf("delaySec %d below minDelay %d", e.delaySec, derived.MinDelay)
	}

	e.cfg = cfg
	e.derived = derived
	e.fragmentActive = true
	e.currentSlotIndex = 0
	e.slots = nil
	e.openSlotBySub = make(map[string]int)
	e.runGeneration++
	gen := e.runGeneration
	e.mu.Unlock()

	e.out.ToSubtitlers(FragmentStartedMsg{Type: "fragment:started"})
	e.out.ToAdmins(FragmentStartedMsg{Type: "fragment:started"})

	e.tryStartNextSlot(gen)
	e.clock.ScheduleEvery(time.Duration(derived.Stride)*time.Second, groupStride, func() {
		e.tryStartNextSlot(gen)
	})
	// Per-slot timers only fire at slot-start, D-notify, S-notify, and D; for
	// a long SlotDuration that leaves gaps with no broadcast at all, so a
	// second ticker keeps admin/subtitler countdown UIs live every second.
	e.clock.ScheduleEvery(1*time.Second, groupStatusTicker, func() {
		e.mu.Lock()
		stillActive := e.fragmentActive && e.runGeneration == gen
		e.mu.Unlock()
		if !stillActive {
			return
		}
		e.broadcastStatus()
	})
	return nil
}

// StopFragment cancels the stride interval and every per-slot timer, flushes
// unsent slots via the pacer, and broadcasts fragment:stopped.
func (e *Engine) StopFragment() {
	e.mu.Lock()
	if !e.fragmentActive {
		e.mu.Unlock()
		return
	}
	e.fragmentActive = false
	e.runGeneration++
	e.mu.Unlock()

	e.clock.CancelGroup(groupStride)
	e.clock.CancelGroup(groupSlots)
	e.clock.CancelGroup(groupStatusTicker)

	e.sendRemainingSlots()

	e.mu.Lock()
	e.openSlotBySub = make(map[string]int)
	e.mu.Unlock()

	e.out.ToSubtitlers(FragmentStoppedMsg{Type: "fragment:stopped"})
	e.out.ToAdmins(FragmentStoppedMsg{Type: "fragment:stopped"})
}

// tryStartNextSlot is startNextSlot from §4.5, gated by a generation check
// so stray ticks from a stopped run are ignored.
func (e *Engine) tryStartNextSlot(gen int64) {
	e.mu.Lock()
	if !e.fragmentActive || e.runGeneration != gen {
		e.mu.Unlock()
		return
	}
	active := e.activeSubtitlers()
	if len(active) < e.cfg.RequiredSubtitlers {
		e.mu.Unlock()
		e.broadcastStatus()
		return
	}

	i := e.currentSlotIndex
	current := e.subtitlerForSlot(i)
	next := e.subtitlerForSlot(i + 1)

	now := e.clock.Now()
	slot := &Slot{
		Index:              i,
		SubtitlerID:        current.ID,
		SubtitlerName:      current.Name,
		StartAt:            now,
		StartVideoOffsetMs: now.Sub(e.liveStartedAt).Milliseconds(),
	}
	e.slots = append(e.slots, slot)
	e.openSlotBySub[current.ID] = i

	d := e.cfg.SlotDuration
	s := e.derived.Stride
	grace := e.derived.Grace
	notify := e.cfg.NotifyBefore
	currentID := current.ID
	nextID := next.ID
	group := groupSlots
	e.currentSlotIndex++
	e.mu.Unlock()

	if d-notify > 0 {
		e.clock.Schedule(time.Duration(d-notify)*time.Second, group, func() {
			e.out.SendTo(currentID, FragmentEndingMsg{Type: "fragment:ending", SecondsLeft: notify})
			e.broadcastStatus()
		})
	}
	if s-notify > 0 {
		e.clock.Schedule(time.Duration(s-notify)*time.Second, group, func() {
			e.out.SendTo(nextID, FragmentPrepareMsg{Type: "fragment:prepare", SecondsLeft: notify})
			e.broadcastStatus()
		})
	}
	e.clock.Schedule(time.Duration(d)*time.Second, group, func() {
		e.out.SendTo(currentID, FragmentGraceStartMsg{Type: "fragment:grace-start", GracePeriodPercent: e.cfg.GracePercent})
		e.broadcastStatus()
	})
	e.clock.Schedule(time.Duration(d+grace)*time.Second, group, func() {
		e.graceEnd(i, currentID, gen)
	})

	e.broadcastStatus()
}

// graceEnd fires at D+G seconds into slot i: it sends auto-send, marks the
// slot's end, clears the open-slot mapping only if it still points at this
// slot, then schedules the settle-delayed finalize.
func (e *Engine) graceEnd(i int, subtitlerID string, gen int64) {
	e.mu.Lock()
	if e.runGeneration != gen || i >= len(e.slots) {
		e.mu.Unlock()
		return
	}
	slot := e.slots[i]
	slot.EndAt = e.clock.Now()
	slot.EndVideoOffsetMs = slot.EndAt.Sub(e.liveStartedAt).Milliseconds()
	slot.HasEnded = true
	if mapped, ok := e.openSlotBySub[subtitlerID]; ok && mapped == i {
		delete(e.openSlotBySub, subtitlerID)
	}
	e.mu.Unlock()

	e.out.SendTo(subtitlerID, FragmentAutoSendMsg{Type: "fragment:auto-send"})

	e.clock.Schedule(e.settleDelay, groupSlots, func() {
		e.finalize(i, gen)
	})
}
