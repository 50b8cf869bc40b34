// Package clock provides the monotonic time source and cancellable timers
// the subtitling engine schedules all of its slot and delivery callbacks on.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic "now" plus cancellable one-shot and interval timers.
// A single Clock is shared by the whole engine so that every scheduled
// callback derives from the same time source.
type Clock struct {
	mu        sync.Mutex
	startedAt time.Time
	handles   map[int64]*handle
	nextID    int64
}

// New creates a Clock anchored at the current wall time.
func New() *Clock {
	return &Clock{
		startedAt: time.Now(),
		handles:   make(map[int64]*handle),
	}
}

// Now returns the current wall time. Callers needing a user-visible video
// offset should capture one Now() at run start (liveStartedAt) and diff
// against it; callers needing relative delays should use Since/Elapsed.
func (c *Clock) Now() time.Time {
	return time.Now()
}

// Elapsed returns the monotonic duration since the Clock was created.
func (c *Clock) Elapsed() time.Duration {
	return time.Since(c.startedAt)
}

// Handle cancels a scheduled callback. Cancel is idempotent and safe to call
// after the callback has already fired.
type Handle interface {
	Cancel()
}

type handle struct {
	id      int64
	group   string
	timer   *time.Timer
	ticker  *time.Ticker
	cancel  chan struct{}
	once    sync.Once
}

func (h *handle) Cancel() {
	h.once.Do(func() {
		close(h.cancel)
		if h.timer != nil {
			h.timer.Stop()
		}
		if h.ticker != nil {
			h.ticker.Stop()
		}
	})
}

// Schedule runs fn once after d elapses. group tags the handle for bulk
// cancellation via CancelGroup; pass "" for no group.
func (c *Clock) Schedule(d time.Duration, group string, fn func()) Handle {
	h := &handle{cancel: make(chan struct{})}
	h.timer = time.NewTimer(d)

	c.mu.Lock()
	c.nextID++
	h.id = c.nextID
	h.group = group
	c.handles[h.id] = h
	c.mu.Unlock()

	go func() {
		select {
		case <-h.timer.C:
			c.forget(h.id)
			fn()
		case <-h.cancel:
		}
	}()
	return h
}

// ScheduleEvery runs fn every d until cancelled.
func (c *Clock) ScheduleEvery(d time.Duration, group string, fn func()) Handle {
	h := &handle{cancel: make(chan struct{})}
	h.ticker = time.NewTicker(d)

	c.mu.Lock()
	c.nextID++
	h.id = c.nextID
	h.group = group
	c.handles[h.id] = h
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-h.ticker.C:
				fn()
			case <-h.cancel:
				return
			}
		}
	}()
	return h
}

func (c *Clock) forget(id int64) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

// CancelGroup cancels every handle tagged with group, leaving other groups
// untouched. Used to clear a single slot's timer set or every timer a run
// owns on stop.
func (c *Clock) CancelGroup(group string) {
	c.mu.Lock()
	var toCancel []*handle
	for id, h := range c.handles {
		if h.group == group {
			toCancel = append(toCancel, h)
			delete(c.handles, id)
		}
	}
	c.mu.Unlock()
	for _, h := range toCancel {
		h.Cancel()
	}
}

// CancelAll cancels every outstanding handle regardless of group.
func (c *Clock) CancelAll() {
	c.mu.Lock()
	all := make([]*handle, 0, len(c.handles))
	for _, h := range c.handles {
		all = append(all, h)
	}
	c.handles = make(map[int64]*handle)
	c.mu.Unlock()
	for _, h := range all {
		h.Cancel()
	}
}
