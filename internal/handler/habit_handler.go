package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rhythmflow/internal/habit"
	"github.com/hitoshi/rhythmflow/internal/model"
)

// HabitServiceInterface は習慣ハンドラーが必要とするサービスインターフェース。
type HabitServiceInterface interface {
	DailyView(ctx context.Context, ownerID string) (*model.DailyView, error)
	Complete(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error)
	Uncomplete(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error)
	Detail(ctx context.Context, viewerID, habitID string) (*model.HabitDetail, error)
	UpdateTime(ctx context.Context, userID, habitID, label string) (*model.Habit, error)
}

// HabitHandler は習慣と日次完了状態のHTTPハンドラー。
type HabitHandler struct {
	service HabitServiceInterface
}

// NewHabitHandler はHabitHandlerを生成する。
func NewHabitHandler(service HabitServiceInterface) *HabitHandler {
	return &HabitHandler{service: service}
}

type habitResponse struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Time        string `json:"time"`
	Icon        string `json:"icon"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sortOrder"`
}

type habitStatusResponse struct {
	habitResponse
	Completed bool `json:"completed"`
}

type dailyViewResponse struct {
	Date      string                `json:"date"`
	Habits    []habitStatusResponse `json:"habits"`
	Completed int                   `json:"completed"`
	Total     int                   `json:"total"`
}

type toggleResponse struct {
	dailyViewResponse
	Changed    bool `json:"changed"`
	Streak     int  `json:"streak"`
	HabitScore int  `json:"habitScore"`
}

type historyEntryResponse struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

type habitDetailResponse struct {
	habitResponse
	OwnerID   string                 `json:"ownerId"`
	OwnerName string                 `json:"ownerName"`
	Editable  bool                   `json:"editable"`
	History   []historyEntryResponse `json:"history"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type updateTimeRequest struct {
	Time string `json:"time"`
}

func toHabitResponse(h *model.Habit) habitResponse {
	return habitResponse{
		ID:          h.ID,
		Text:        h.Text,
		Time:        h.ScheduledTime,
		Icon:        h.IconTag,
		Description: h.Description,
		SortOrder:   h.SortOrder,
	}
}

func toDailyViewResponse(v *model.DailyView) dailyViewResponse {
	habits := make([]habitStatusResponse, len(v.Habits))
	for i := range v.Habits {
		habits[i] = habitStatusResponse{
			habitResponse: toHabitResponse(&v.Habits[i].Habit),
			Completed:     v.Habits[i].CompletedToday,
		}
	}
	return dailyViewResponse{
		Date:      v.Date,
		Habits:    habits,
		Completed: v.CompletedCount(),
		Total:     len(v.Habits),
	}
}

// Today は当日の習慣一覧を完了状態付きで返す。
// GET /api/habits/today[?sort=time]
func (h *HabitHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.service.DailyView(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	switch r.URL.Query().Get("sort") {
	case "", "order":
	case "time":
		habit.SortByTime(view.Habits)
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("sortはorderまたはtimeを指定してください"))
		return
	}

	writeJSON(w, http.StatusOK, toDailyViewResponse(view))
}

// Complete は習慣を完了にする。
// POST /api/habits/{id}/complete
func (h *HabitHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Complete)
}

// Uncomplete は習慣の完了を取り消す。
// POST /api/habits/{id}/uncomplete
func (h *HabitHandler) Uncomplete(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Uncomplete)
}

func (h *HabitHandler) toggle(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error),
) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := apply(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// 既に目的の状態だった場合もchanged=falseの200を返す
	writeJSON(w, http.StatusOK, toggleResponse{
		dailyViewResponse: toDailyViewResponse(&result.View),
		Changed:           result.Changed,
		Streak:            result.Counters.Streak,
		HabitScore:        result.Counters.HabitScore,
	})
}

// Detail は習慣の詳細と完了履歴を返す。
// GET /api/habits/{id}
func (h *HabitHandler) Detail(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Detail(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	history := make([]historyEntryResponse, len(detail.History))
	for i, e := range detail.History {
		history[i] = historyEntryResponse{Date: e.Date, Completed: e.Completed}
	}

	writeJSON(w, http.StatusOK, habitDetailResponse{
		habitResponse: toHabitResponse(&detail.Habit),
		OwnerID:       detail.Habit.OwnerID,
		OwnerName:     detail.OwnerName,
		Editable:      detail.Editable,
		History:       history,
		UpdatedAt:     detail.Habit.UpdatedAt,
	})
}

// UpdateTime は習慣の時刻ラベルを変更する。
// PATCH /api/habits/{id}
func (h *HabitHandler) UpdateTime(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateTime(r.Context(), userID, chi.URLParam(r, "id"), req.Time)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toHabitResponse(updated))
}
