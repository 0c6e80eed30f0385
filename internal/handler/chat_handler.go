package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Post(ctx context.Context, userID, text string) (*model.ChatMessage, error)
	List(ctx context.Context, limit int) ([]*model.ChatMessage, error)
}

// ChatHandler は共有チャットルームのHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type chatMessageResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserPhotoURL *string   `json:"userPhotoURL,omitempty"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toChatMessageResponse(m *model.ChatMessage) chatMessageResponse {
	return chatMessageResponse{
		ID:           m.ID,
		UserID:       m.UserID,
		UserName:     m.UserName,
		UserPhotoURL: m.UserPhotoURL,
		Text:         m.Text,
		CreatedAt:    m.CreatedAt,
	}
}

// List は直近のメッセージを投稿時刻の昇順で返す。
// GET /api/chat/messages[?limit=n]
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limitは0以上の整数を指定してください"))
			return
		}
		limit = n
	}

	messages, err := h.service.List(r.Context(), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]chatMessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = toChatMessageResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Post はメッセージを投稿する。
// POST /api/chat/messages
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Post(r.Context(), userID, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChatMessageResponse(msg))
}
