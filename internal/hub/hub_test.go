package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		serverConnCh <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	serverConn := <-serverConnCh
	t.Cleanup(func() { clientConn.Close() })
	return serverConn, clientConn
}

func TestSendToDeliversMessage(t *testing.T) {
	h := New()
	serverConn, clientConn := dialPair(t)
	h.Add("conn-1", RoleSpectator, serverConn)
	t.Cleanup(func() { h.Remove("conn-1") })

	h.SendTo("conn-1", map[string]string{"type": "hello"})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestBroadcastFiltersByRole(t *testing.T) {
	h := New()
	adminServer, adminClient := dialPair(t)
	specServer, specClient := dialPair(t)
	h.Add("admin-1", RoleAdmin, adminServer)
	h.Add("spec-1", RoleSpectator, specServer)
	t.Cleanup(func() { h.Remove("admin-1"); h.Remove("spec-1") })

	h.ToAdmins(map[string]string{"type": "admin-only"})

	adminClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := adminClient.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "admin-only") {
		t.Fatalf("unexpected payload: %s", data)
	}

	specClient.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := specClient.ReadMessage(); err == nil {
		t.Fatal("spectator should not have received admin broadcast")
	}
}

func TestRemoveStopsDelivery(t *testing.T) {
	h := New()
	serverConn, _ := dialPair(t)
	h.Add("conn-1", RoleSubtitler, serverConn)
	h.Remove("conn-1")

	// SendTo after Remove should be a silent no-op, not a panic.
	h.SendTo("conn-1", map[string]string{"type": "late"})
}
