// Package playlist parses the upstream segmented playlist written by the
// transcoder and derives the live-edge and delayed sub-playlists served to
// subtitlers and spectators. It never mutates the upstream file.
package playlist

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Segment is one media segment line in a playlist: an EXTINF duration plus
// the following URI.
type Segment struct {
	Duration float64
	Title    string
	URI      string
}

// Playlist is a parsed (or derived) media playlist window.
type Playlist struct {
	TargetDuration int
	MediaSequence  int64
	Segments       []Segment
}

// String renders the playlist back to HLS text.
func (p *Playlist) String() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", p.TargetDuration)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.MediaSequence)
	for _, s := range p.Segments {
		fmt.Fprintf(&b, "#EXTINF:%s,%s\n", formatDuration(s.Duration), s.Title)
		b.WriteString(s.URI)
		b.WriteString("\n")
	}
	return b.String()
}

func formatDuration(d float64) string {
	s := strconv.FormatFloat(d, 'f', -1, 64)
	return s
}

// Source is the full parsed upstream playlist.
type Source struct {
	TargetDuration int
	MediaSequence  int64
	Segments       []Segment
}

// Builder reads the upstream playlist file on demand and derives views from
// it. It holds no cache: each call re-reads the file, matching the
// upstream's cheap-to-read assumption in the design.
type Builder struct {
	path string
}

// NewBuilder returns a Builder reading the upstream playlist at path.
func NewBuilder(path string) *Builder {
	return &Builder{path: path}
}

// ErrNotEnoughSegments is returned by GetDelayed when the upstream playlist
// does not yet have enough segments to satisfy the requested delay.
var ErrNotEnoughSegments = fmt.Errorf("not enough segments")

func (b *Builder) read() (*Source, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("open upstream playlist: %w", err)
	}
	defer f.Close()

	src := &Source{}
	scanner := bufio.NewScanner(f)
	var pendingDuration float64
	var pendingTitle string
	havePending := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err == nil {
				src.TargetDuration = v
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)
			if err == nil {
				src.MediaSequence = v
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			rest := strings.TrimPrefix(line, "#EXTINF:")
			parts := strings.SplitN(rest, ",", 2)
			dur, _ := strconv.ParseFloat(parts[0], 64)
			title := ""
			if len(parts) == 2 {
				title = parts[1]
			}
			pendingDuration = dur
			pendingTitle = title
			havePending = true
		case strings.HasPrefix(line, "#"):
			// other tags (ENDLIST, VERSION, ...) are not needed for view derivation.
		default:
			if havePending {
				src.Segments = append(src.Segments, Segment{
					Duration: pendingDuration,
					Title:    pendingTitle,
					URI:      line,
				})
				havePending = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan upstream playlist: %w", err)
	}
	return src, nil
}

// Status reports whether the upstream playlist is currently readable and how
// many segments it holds.
type Status struct {
	HasManifest  bool
	SegmentCount int
}

// Status fails soft: an absent upstream file is reported, not returned as an
// error.
func (b *Builder) Status() Status {
	src, err := b.read()
	if err != nil {
		return Status{HasManifest: false}
	}
	return Status{HasManifest: true, SegmentCount: len(src.Segments)}
}

// GetLive returns the last min(windowSize, total) segments with the media
// sequence adjusted to base + (total - kept).
func (b *Builder) GetLive(windowSize int) (*Playlist, error) {
	src, err := b.read()
	if err != nil {
		return nil, err
	}
	total := len(src.Segments)
	kept := windowSize
	if kept > total {
		kept = total
	}
	if kept < 0 {
		kept = 0
	}
	start := total - kept
	return &Playlist{
		TargetDuration: src.TargetDuration,
		MediaSequence:  src.MediaSequence + int64(start),
		Segments:       append([]Segment(nil), src.Segments[start:]...),
	}, nil
}

// GetDelayed returns a window of up to windowSize segments ending
// delaySegs = floor(delaySec / targetDuration) segments back from the live
// edge. Fails with ErrNotEnoughSegments when the upstream doesn't yet have
// enough segments to place that window.
func (b *Builder) GetDelayed(delaySec int, windowSize int) (*Playlist, error) {
	src, err := b.read()
	if err != nil {
		return nil, err
	}
	if src.TargetDuration <= 0 {
		return nil, fmt.Errorf("upstream playlist has no target duration")
	}
	total := len(src.Segments)
	delaySegs := delaySec / src.TargetDuration
	endIdx := total - delaySegs
	if endIdx <= 0 {
		return nil, ErrNotEnoughSegments
	}
	start := endIdx - windowSize
	if start < 0 {
		start = 0
	}
	return &Playlist{
		TargetDuration: src.TargetDuration,
		MediaSequence:  src.MediaSequence + int64(start),
		Segments:       append([]Segment(nil), src.Segments[start:endIdx]...),
	}, nil
}
