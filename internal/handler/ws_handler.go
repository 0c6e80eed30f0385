package handler

import "net/http"

// StreamServer はWebSocket接続を処理するインターフェース。
// realtime.Bridgeが実装する。
type StreamServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

// WSHandler はリアルタイムイベント配信のHTTPハンドラー。
type WSHandler struct {
	stream StreamServer
}

// NewWSHandler はWSHandlerを生成する。
func NewWSHandler(stream StreamServer) *WSHandler {
	return &WSHandler{stream: stream}
}

// Serve はWebSocketにアップグレードし、chat_messageとhabit_completedを配信する。
// GET /api/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	h.stream.Serve(w, r, userID)
}
