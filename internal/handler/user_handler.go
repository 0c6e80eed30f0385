package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// photoFormField はプロフィール写真アップロードのmultipartフィールド名。
const photoFormField = "photo"

// UserServiceInterface は退会処理に必要なサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// 完了記録、習慣、セッション、ユーザーを削除し、リアルタイム接続を切断する。
	Withdraw(ctx context.Context, userID string) error
}

// ProfileServiceInterface はプロフィール関連のサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	Update(ctx context.Context, userID string, displayName, photoURL *string) (*model.User, error)
	UploadPhoto(ctx context.Context, userID, filename string, data []byte) (*model.User, error)
	MonthlyCompletions(ctx context.Context, userID string) ([]model.MonthlyCount, error)
	MaxPhotoBytes() int64
}

// UserHandler はユーザー管理とプロフィールのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	profile ProfileServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, profile ProfileServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
		profile: profile,
	}
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

type monthlyCountResponse struct {
	Month  string `json:"month"`
	Label  string `json:"label"`
	Habits int    `json:"habits"`
}

// profileUserID は{id}パラメータを解決する。"me"または未指定は認証済みユーザーを指す。
func profileUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || id == "me" {
		return requireUserID(w, r)
	}
	return id, true
}

// GetProfile はユーザーのプロフィールを返す。
// GET /api/users/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := profileUserID(w, r)
	if !ok {
		return
	}

	user, err := h.profile.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Monthly は直近6か月の月別完了数を返す。
// GET /api/users/{id}/monthly
func (h *UserHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	userID, ok := profileUserID(w, r)
	if !ok {
		return
	}

	counts, err := h.profile.MonthlyCompletions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]monthlyCountResponse, len(counts))
	for i, c := range counts {
		resp[i] = monthlyCountResponse{Month: c.Month, Label: c.Label, Habits: c.Habits}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateMe は自分の表示名・写真URLを更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DisplayName == nil && req.PhotoURL == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("更新する項目がありません"))
		return
	}

	user, err := h.profile.Update(r.Context(), userID, req.DisplayName, req.PhotoURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UploadPhoto はプロフィール写真をアップロードし、写真URLを更新する。
// POST /api/users/me/photo （multipart/form-data、フィールド名 photo）
func (h *UserHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	maxBytes := h.profile.MaxPhotoBytes()
	// multipartのヘッダー分の余裕を持たせる
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64<<10)

	file, header, err := r.FormFile(photoFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewValidationError("写真のサイズが大きすぎます"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("photoフィールドに画像ファイルを指定してください"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		slog.Warn("failed to read uploaded photo",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("写真を読み込めませんでした"))
		return
	}

	user, err := h.profile.UploadPhoto(r.Context(), userID, header.Filename, data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
