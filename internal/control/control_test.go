package control

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/christian-lee/subcoord/internal/clock"
	"github.com/christian-lee/subcoord/internal/engine"
	"github.com/christian-lee/subcoord/internal/hub"
	"github.com/christian-lee/subcoord/internal/playlist"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	c := clock.New()
	h := hub.New()
	eng := engine.New(c, h, 50*time.Millisecond)

	dir := t.TempDir()
	path := filepath.Join(dir, "stream.m3u8")
	body := "#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:2.0,\nseg0.ts\n#EXTINF:2.0,\nseg1.ts\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	builder := playlist.NewBuilder(path)

	return NewServer(eng, h, builder)
}

func TestHandleLiveStatus(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/live/status", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleHLSLive(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/hls/live.m3u8", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !contains(w.Body.String(), "#EXTM3U") {
		t.Fatalf("expected HLS playlist body, got %s", w.Body.String())
	}
}

func TestHandleHLSDelayed_NotEnoughSegments(t *testing.T) {
	s := newTestServer(t)
	// delaySec=10 with targetDuration=2 needs 5 segments; the upstream has 2.
	if err := s.eng.SetDelay(10); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "/hls/delayed.m3u8", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != 404 {
		t.Fatalf("expected 404 for insufficient delayed window, got %d", w.Code)
	}
}

func TestHandleLiveStart_RejectsBadConfig(t *testing.T) {
	s := newTestServer(t)
	body := `{"mode":"fragmentation","delaySec":10,"slotDuration":10,"overlapDuration":5,"gracePeriodPercent":40,"requiredSubtitlers":2}`
	req := httptest.NewRequest("POST", "/live/start", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("expected 400 for requiredSubtitlers below minRequired, got %d: %s", w.Code, w.Body.String())
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
