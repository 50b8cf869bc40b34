// Package control implements the Control Surface (C9): HTTP request
// handlers and the realtime WebSocket dispatch that invoke the engine and
// playlist builder. It owns no session state of its own.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/christian-lee/subcoord/internal/engine"
	"github.com/christian-lee/subcoord/internal/hub"
	"github.com/christian-lee/subcoord/internal/playlist"
)

// Server wires the engine, client hub, and playlist builder into an
// http.Handler.
type Server struct {
	eng      *engine.Engine
	hub      *hub.Hub
	builder  *playlist.Builder
	mux      *http.ServeMux
	maxDelay int
}

func NewServer(eng *engine.Engine, h *hub.Hub, builder *playlist.Builder) *Server {
	s := &Server{eng: eng, hub: h, builder: builder, maxDelay: 300}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/config", s.handleConfig)
	s.mux.HandleFunc("/delay", s.handleDelay)
	s.mux.HandleFunc("/live/status", s.handleLiveStatus)
	s.mux.HandleFunc("/live/start", s.handleLiveStart)
	s.mux.HandleFunc("/live/stop", s.handleLiveStop)
	s.mux.HandleFunc("/fragment/config", s.handleFragmentConfig)
	s.mux.HandleFunc("/fragment/status", s.handleFragmentStatus)
	s.mux.HandleFunc("/fragment/start", s.handleFragmentStart)
	s.mux.HandleFunc("/fragment/stop", s.handleFragmentStop)
	s.mux.HandleFunc("/fragment/raw-captions", s.handleRawCaptions)
	s.mux.HandleFunc("/hls/live.m3u8", s.handleHLSLive)
	s.mux.HandleFunc("/hls/delayed.m3u8", s.handleHLSDelayed)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("control: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	st := s.eng.Status()
	writeJSON(w, map[string]any{
		"delaySec":     st.DelaySec,
		"mode":         st.Mode,
		"fragmentMode": st.FragmentActive,
	})
}

func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, map[string]int{"delaySec": s.eng.Status().DelaySec})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		DelaySec int `json:"delaySec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if body.DelaySec > s.maxDelay {
		writeError(w, http.StatusBadRequest, "delaySec exceeds maxDelaySec")
		return
	}
	if err := s.eng.SetDelay(body.DelaySec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]int{"delaySec": body.DelaySec})
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	st := s.eng.Status()
	ps := s.builder.Status()
	writeJSON(w, map[string]any{
		"running":        st.Running,
		"liveStartedAt":  st.LiveStartedAt,
		"manifest":       ps.HasManifest,
		"segmentCount":   ps.SegmentCount,
		"mode":           st.Mode,
		"delaySec":       st.DelaySec,
		"fragmentMode":   st.FragmentActive,
		"minSubtitlers":  st.MinSubtitlers,
	})
}

type liveStartRequest struct {
	Source             string `json:"source"`
	Mode               string `json:"mode"`
	DelaySec           int    `json:"delaySec"`
	SlotDuration       int    `json:"slotDuration"`
	OverlapDuration    int    `json:"overlapDuration"`
	NotifyBefore       int    `json:"notifyBefore"`
	GracePeriodPercent int    `json:"gracePeriodPercent"`
	RequiredSubtitlers int    `json:"requiredSubtitlers"`
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req liveStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Mode == "" {
		req.Mode = "fragmentation"
	}
	delaySec := req.DelaySec
	if delaySec == 0 {
		delaySec = 10
	}
	if err := s.eng.StartLive(delaySec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode == "fragmentation" {
		cfg := engine.Config{
			SegmentDuration:    2,
			DelaySec:           delaySec,
			SlotDuration:       req.SlotDuration,
			OverlapDuration:    req.OverlapDuration,
			GracePercent:       req.GracePeriodPercent,
			NotifyBefore:       req.NotifyBefore,
			RequiredSubtitlers: req.RequiredSubtitlers,
		}
		if err := s.eng.StartFragment(cfg); err != nil {
			s.eng.StopLive()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	_ = s.eng.StopLive() // idempotent: errNotRunning is not surfaced as a failure
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleFragmentConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		st := s.eng.FragmentAdminStatus()
		writeJSON(w, st)
		return
	}
	s.handleLiveStart(w, r)
}

func (s *Server) handleFragmentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.FragmentAdminStatus())
}

func (s *Server) handleFragmentStart(w http.ResponseWriter, r *http.Request) {
	var req liveStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	cfg := engine.Config{
		SegmentDuration:    2,
		SlotDuration:       req.SlotDuration,
		OverlapDuration:    req.OverlapDuration,
		GracePercent:       req.GracePeriodPercent,
		NotifyBefore:       req.NotifyBefore,
		RequiredSubtitlers: req.RequiredSubtitlers,
	}
	if err := s.eng.StartFragment(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleFragmentStop(w http.ResponseWriter, r *http.Request) {
	s.eng.StopFragment()
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleRawCaptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.RawCaptions())
}

func (s *Server) handleHLSLive(w http.ResponseWriter, r *http.Request) {
	pl, err := s.builder.GetLive(10)
	if err != nil {
		writeError(w, http.StatusNotFound, "upstream playlist unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write([]byte(pl.String()))
}

func (s *Server) handleHLSDelayed(w http.ResponseWriter, r *http.Request) {
	delaySec := s.eng.Status().DelaySec
	pl, err := s.builder.GetDelayed(delaySec, 10)
	if err != nil {
		writeError(w, http.StatusNotFound, "not enough segments")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write([]byte(pl.String()))
}
