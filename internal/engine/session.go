package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/christian-lee/subcoord/internal/clock"
	"github.com/christian-lee/subcoord/internal/export"
	"github.com/google/uuid"
)

// defaultSettleDelay is the tolerance window after grace end before a slot
// is finalized, giving a late auto-send still in flight a chance to land.
const defaultSettleDelay = 800 * time.Millisecond

// defaultMaxDelaySec bounds how large an operator may set delaySec via the
// control surface.
const defaultMaxDelaySec = 300

// Engine is the Session State Store (C3) plus the Slot Scheduler (C5),
// Submission Gate (C6), Fusion Engine (C7) and Delivery Pacer (C8) that
// operate on it. Every exported method takes the single mutex for the
// duration of its state mutation; broadcasts are sent after the target
// connection list is captured, never while still holding the lock.
type Engine struct {
	clock *clock.Clock
	out   Broadcaster
	exp   export.Sink

	settleDelay time.Duration
	maxDelaySec int

	mu sync.Mutex

	cfg     Config
	derived Derived

	running        bool
	fragmentActive bool
	liveStartedAt  time.Time
	delaySec       int

	runGeneration int64

	subtitlers map[string]*Subtitler // roster, keyed by id

	currentSlotIndex int
	slots            []*Slot
	openSlotBySub    map[string]int // subtitlerId -> slotIndex

	fusedHistory []FusedCaption
}

// New builds an Engine. settleDelay <= 0 uses the spec default of 800ms.
func New(c *clock.Clock, out Broadcaster, settleDelay time.Duration) *Engine {
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}
	return &Engine{
		clock:         c,
		out:           out,
		exp:           export.NoopSink{},
		settleDelay:   settleDelay,
		maxDelaySec:   defaultMaxDelaySec,
		subtitlers:    make(map[string]*Subtitler),
		openSlotBySub: make(map[string]int),
	}
}

// SetExportSink installs a durable export hook. Must be called before a run
// starts; it is not safe to swap sinks mid-run.
func (e *Engine) SetExportSink(sink export.Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exp = sink
}

// Join adds a subtitler to the roster, ordered by join time.
func (e *Engine) Join(id, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subtitlers[id]; ok {
		return
	}
	e.subtitlers[id] = &Subtitler{ID: id, Name: name, JoinedAt: e.clock.Now()}
}

// Leave removes a subtitler from the roster. Per §4.5 liveness rules, any
// slot already assigned to them is left untouched: no reassignment happens.
func (e *Engine) Leave(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subtitlers, id)
}

// activeSubtitlers returns the roster ordered by joinedAt ascending. Caller
// must hold the lock.
func (e *Engine) activeSubtitlers() []*Subtitler {
	list := make([]*Subtitler, 0, len(e.subtitlers))
	for _, s := range e.subtitlers {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].JoinedAt.Before(list[j].JoinedAt) })
	return list
}

// subtitlerForSlot returns the subtitler assigned to slot i under the
// current roster, or nil if the roster is empty. Caller must hold the lock.
func (e *Engine) subtitlerForSlot(i int) *Subtitler {
	list := e.activeSubtitlers()
	if len(list) == 0 {
		return nil
	}
	return list[i%len(list)]
}

// currentSubtitler returns the subtitler assigned to the in-progress slot,
// or nil if no slot is open. Caller must hold the lock.
func (e *Engine) currentSubtitler() *Subtitler {
	if !e.running || !e.fragmentActive || len(e.slots) == 0 {
		return nil
	}
	s := e.slots[len(e.slots)-1]
	if s.HasEnded {
		return nil
	}
	return e.subtitlers[s.SubtitlerID]
}

func newCaptionID() string {
	return uuid.NewString()
}

var errAlreadyRunning = fmt.Errorf("already running")
var errNotRunning = fmt.Errorf("not running")
