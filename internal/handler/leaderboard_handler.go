package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// LeaderboardServiceInterface はランキングハンドラーが必要とするサービスインターフェース。
type LeaderboardServiceInterface interface {
	List(ctx context.Context, withProgress bool) ([]model.LeaderboardEntry, error)
}

// LeaderboardHandler はランキングのHTTPハンドラー。
type LeaderboardHandler struct {
	service LeaderboardServiceInterface
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(service LeaderboardServiceInterface) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

type progressResponse struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type leaderboardEntryResponse struct {
	Rank        int               `json:"rank"`
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName"`
	Email       string            `json:"email"`
	PhotoURL    *string           `json:"photoURL"`
	Streak      int               `json:"streak"`
	HabitScore  int               `json:"habitScore"`
	Progress    *progressResponse `json:"progress,omitempty"`
}

// List はhabitScoreの降順でユーザーを返す。
// GET /api/leaderboard[?progress=true]
func (h *LeaderboardHandler) List(w http.ResponseWriter, r *http.Request) {
	withProgress := false
	if v := r.URL.Query().Get("progress"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("progressはtrueまたはfalseを指定してください"))
			return
		}
		withProgress = parsed
	}

	entries, err := h.service.List(r.Context(), withProgress)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]leaderboardEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = leaderboardEntryResponse{
			Rank:        e.Rank,
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			Email:       e.Email,
			PhotoURL:    e.PhotoURL,
			Streak:      e.Streak,
			HabitScore:  e.HabitScore,
		}
		if e.Progress != nil {
			resp[i].Progress = &progressResponse{Completed: e.Progress.Completed, Total: e.Progress.Total}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
