package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxReadSize はクライアントから受け付けるフレームの最大サイズ。
	// クライアントからのメッセージはpong以外使用しない。
	maxReadSize = 512
)

// Bridge はHubの配信をWebSocket接続へ中継する。
type Bridge struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewBridge はBridgeの新しいインスタンスを生成する。
// allowedOriginが空の場合は同一オリジンのみ許可する（gorilla/websocketの既定動作）。
func NewBridge(hub *Hub, allowedOrigin string) *Bridge {
	b := &Bridge{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if allowedOrigin != "" {
		b.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		}
	}
	return b
}

// Serve はHTTP接続をWebSocketへアップグレードし、切断されるまでイベントを送信する。
// userIDは認証済みのユーザーID。
func (b *Bridge) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	client := b.hub.Register(userID)
	slog.Debug("websocket connected", slog.String("user_id", userID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, client)
	}()
	readPump(conn)

	b.hub.Unregister(client)
	<-done
	slog.Debug("websocket disconnected", slog.String("user_id", userID))
}

// readPump はクライアントが切断するまでフレームを読み捨てる。
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信チャネルのメッセージを書き込み、定期的にpingを送る。
// チャネルがクローズされるとcloseフレームを送って接続を閉じる。
func writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
