// Package presence watches the upstream playlist for appearance/disappearance
// of the transcoder's manifest and announces the transitions to connected
// clients. It is the domain's analogue of a remote-room liveness monitor:
// instead of polling a third-party room API, it polls the same on-disk
// playlist the control surface already serves from.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/christian-lee/subcoord/internal/playlist"
)

// Broadcaster is the subset of the Client Hub a Poller needs to announce
// transitions.
type Broadcaster interface {
	ToAdmins(msg any)
	ToSpectators(msg any)
}

// SourceStatusMsg is sent whenever the upstream playlist's manifest
// appears or disappears.
type SourceStatusMsg struct {
	Type         string `json:"type"`
	Available    bool   `json:"available"`
	SegmentCount int    `json:"segmentCount"`
}

// Poller periodically checks the upstream playlist and broadcasts when its
// availability changes.
type Poller struct {
	builder  *playlist.Builder
	out      Broadcaster
	interval time.Duration

	mu          sync.Mutex
	wasAvailable bool
	everChecked  bool
}

func New(builder *playlist.Builder, out Broadcaster, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{builder: builder, out: out, interval: interval}
}

// Run blocks, polling until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("presence: poller started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check()
		}
	}
}

func (p *Poller) check() {
	st := p.builder.Status()

	p.mu.Lock()
	transitioned := !p.everChecked || st.HasManifest != p.wasAvailable
	p.wasAvailable = st.HasManifest
	p.everChecked = true
	p.mu.Unlock()

	if !transitioned {
		return
	}

	if st.HasManifest {
		slog.Info("presence: upstream playlist appeared", "segments", st.SegmentCount)
	} else {
		slog.Info("presence: upstream playlist disappeared")
	}

	msg := SourceStatusMsg{Type: "source:status", Available: st.HasManifest, SegmentCount: st.SegmentCount}
	p.out.ToAdmins(msg)
	p.out.ToSpectators(msg)
}
