package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/christian-lee/subcoord/internal/engine"
	"github.com/christian-lee/subcoord/internal/hub"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundEnvelope struct {
	Type string `json:"type"`
}

type identifyMsg struct {
	ClientType string `json:"clientType"`
	Name       string `json:"name"`
}

type captionInboundMsg struct {
	Text            string `json:"text"`
	SubtitlerName   string `json:"subtitlerName"`
	AutoSent        bool   `json:"autoSent"`
}

// handleWebSocket upgrades the connection, reads an identify message, and
// then dispatches every subsequent client->server message to the engine.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("control: websocket upgrade", "error", err)
		return
	}

	connID := uuid.NewString()
	role := hub.RoleSpectator // default until identify arrives
	conn := s.hub.Add(connID, role, ws)

	st := s.eng.Status()
	conn.Role = role
	s.hub.SendTo(connID, hub.InitPayload{
		Type:         "init",
		ConnID:       connID,
		Running:      st.Running,
		DelaySec:     st.DelaySec,
		Mode:         st.Mode,
		FragmentMode: st.FragmentActive,
	})

	defer s.hub.Remove(connID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.dispatchInbound(connID, data)
	}
}

func (s *Server) dispatchInbound(connID string, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "identify":
		var m identifyMsg
		json.Unmarshal(data, &m)
		role := hub.RoleSpectator
		switch m.ClientType {
		case "admin":
			role = hub.RoleAdmin
		case "subtitler":
			role = hub.RoleSubtitler
		}
		s.setConnRole(connID, role)
		if role == hub.RoleSubtitler {
			s.eng.Join(connID, m.Name)
			s.hub.SendTo(connID, engine.FragmentJoinedMsg{Type: "fragment:joined", ConnID: connID, Active: true})
		}

	case "fragment:join":
		var m identifyMsg
		json.Unmarshal(data, &m)
		s.eng.Join(connID, m.Name)
		s.hub.SendTo(connID, engine.FragmentJoinedMsg{Type: "fragment:joined", ConnID: connID, Active: true})

	case "fragment:leave":
		s.eng.Leave(connID)

	case "caption":
		var m captionInboundMsg
		json.Unmarshal(data, &m)
		err := s.eng.Submit(engine.CaptionInput{
			Text:                 m.Text,
			SendingSubtitlerID:   connID,
			SendingSubtitlerName: m.SubtitlerName,
			AutoSent:             m.AutoSent,
			ReceivedAt:           time.Now(),
		})
		if err != nil {
			slog.Debug("control: caption rejected", "connId", connID, "error", err)
		}
	}
}

func (s *Server) setConnRole(connID string, role hub.Role) {
	// Role changes take effect for subsequent broadcasts; the hub looks up
	// connections by id on every fan-out, so updating in place is safe.
	s.hub.SetRole(connID, role)
}
