package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/rhythmflow/internal/model"
)

func newBridgeServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	bridge := NewBridge(hub, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bridge.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = resp.Body.Close()
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestBridge_DeliversEvents はWebSocket接続にイベントが届くことを検証する。
func TestBridge_DeliversEvents(t *testing.T) {
	hub := NewHub(4, nil)
	srv := newBridgeServer(t, hub)

	conn := dial(t, srv, "user-b")
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.NotifyHabitCompleted(model.HabitCompletedEvent{ActorID: "user-a", ActorName: "Alice", HabitText: "Shower"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type    string                    `json:"type"`
		Payload model.HabitCompletedEvent `json:"payload"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON error: %v", err)
	}
	if ev.Type != TopicHabitCompleted || ev.Payload.HabitText != "Shower" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

// TestBridge_ClientCloseUnregisters はクライアント切断でハブから登録解除されることを検証する。
func TestBridge_ClientCloseUnregisters(t *testing.T) {
	hub := NewHub(4, nil)
	srv := newBridgeServer(t, hub)

	conn := dial(t, srv, "user-a")
	waitForClients(t, hub, 1)

	_ = conn.Close()
	waitForClients(t, hub, 0)
}

// TestBridge_DisconnectUserClosesSocket はDisconnectUserでソケットが閉じられることを検証する。
func TestBridge_DisconnectUserClosesSocket(t *testing.T) {
	hub := NewHub(4, nil)
	srv := newBridgeServer(t, hub)

	conn := dial(t, srv, "user-a")
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.DisconnectUser("user-a")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("err = %v, want normal closure", err)
	}
}

// TestBridge_RejectsPlainHTTP はアップグレードでない要求を拒否することを検証する。
func TestBridge_RejectsPlainHTTP(t *testing.T) {
	hub := NewHub(4, nil)
	srv := newBridgeServer(t, hub)

	resp, err := srv.Client().Get(srv.URL + "/?user=user-a")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}
