package engine

import "time"

// Subtitler is one connected caption author.
type Subtitler struct {
	ID       string
	Name     string
	JoinedAt time.Time // monotonic ordering key
}

// RawCaption is one received caption fragment, before fusion.
type RawCaption struct {
	Text          string
	VideoTimestamp int64 // ms since liveStartedAt: slot start offset plus time into the slot, capped at slot body end
	ReceivedAt    time.Time
	AutoSent      bool
}

// Slot is one scheduled subtitling window.
type Slot struct {
	Index int

	SubtitlerID   string
	SubtitlerName string

	StartAt            time.Time
	StartVideoOffsetMs int64
	EndAt              time.Time
	EndVideoOffsetMs    int64
	HasEnded            bool

	Captions []RawCaption

	OverlapFromPrev int // overlap with slot i-1, set by slot i's own finalize; 0 if unset
	HasOverlap      bool
	FinalText       string
	Sent            bool
}

// rawText concatenates the slot's received caption texts in arrival order,
// space-joined, then re-normalized through tokenize/detokenize.
func (s *Slot) rawText() string {
	if len(s.Captions) == 0 {
		return ""
	}
	var all []string
	for _, c := range s.Captions {
		all = append(all, tokenize(c.Text)...)
	}
	return detokenize(all)
}

// FusedCaption is one emitted, gap-free transcript segment.
type FusedCaption struct {
	ID             string
	Text           string
	CreatedAt      time.Time
	VideoTimestamp int64
	SlotIndex      int
	NextSlotIndex  int
	OverlapCount   int
}

// Mode describes whether the session is running, and whether fragment
// (overlapping-slot subtitling) mode is active within that run.
type Mode string

const (
	ModeStopped Mode = "stopped"
	ModeLive    Mode = "live"
)
