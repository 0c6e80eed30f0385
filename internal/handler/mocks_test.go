package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/rhythmflow/internal/middleware"
	"github.com/hitoshi/rhythmflow/internal/model"
)

// withUserID はリクエストコンテキストに認証済みユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// --- mockAuthService ---

type mockAuthService struct {
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	signUpFn         func(ctx context.Context, email, password, displayName string) (*model.Session, error)
	signInFn         func(ctx context.Context, email, password string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, displayName)
	}
	return nil, nil
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return &model.User{ID: "user-1", Email: "alice@example.com", DisplayName: "Alice"}, nil
}

// --- mockHabitService ---

type mockHabitService struct {
	dailyViewFn  func(ctx context.Context, ownerID string) (*model.DailyView, error)
	completeFn   func(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error)
	uncompleteFn func(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error)
	detailFn     func(ctx context.Context, viewerID, habitID string) (*model.HabitDetail, error)
	updateTimeFn func(ctx context.Context, userID, habitID, label string) (*model.Habit, error)
}

func (m *mockHabitService) DailyView(ctx context.Context, ownerID string) (*model.DailyView, error) {
	if m.dailyViewFn != nil {
		return m.dailyViewFn(ctx, ownerID)
	}
	return &model.DailyView{OwnerID: ownerID, Date: "2026-10-15"}, nil
}

func (m *mockHabitService) Complete(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, ownerID, habitID)
	}
	return &model.ToggleResult{}, nil
}

func (m *mockHabitService) Uncomplete(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error) {
	if m.uncompleteFn != nil {
		return m.uncompleteFn(ctx, ownerID, habitID)
	}
	return &model.ToggleResult{}, nil
}

func (m *mockHabitService) Detail(ctx context.Context, viewerID, habitID string) (*model.HabitDetail, error) {
	if m.detailFn != nil {
		return m.detailFn(ctx, viewerID, habitID)
	}
	return nil, model.NewHabitNotFoundError(habitID)
}

func (m *mockHabitService) UpdateTime(ctx context.Context, userID, habitID, label string) (*model.Habit, error) {
	if m.updateTimeFn != nil {
		return m.updateTimeFn(ctx, userID, habitID, label)
	}
	return nil, model.NewHabitNotFoundError(habitID)
}

// --- mockLeaderboardService ---

type mockLeaderboardService struct {
	listFn func(ctx context.Context, withProgress bool) ([]model.LeaderboardEntry, error)
}

func (m *mockLeaderboardService) List(ctx context.Context, withProgress bool) ([]model.LeaderboardEntry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, withProgress)
	}
	return nil, nil
}

// --- mockUserService ---

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- mockProfileService ---

type mockProfileService struct {
	getFn         func(ctx context.Context, userID string) (*model.User, error)
	updateFn      func(ctx context.Context, userID string, displayName, photoURL *string) (*model.User, error)
	uploadPhotoFn func(ctx context.Context, userID, filename string, data []byte) (*model.User, error)
	monthlyFn     func(ctx context.Context, userID string) ([]model.MonthlyCount, error)
	maxPhotoBytes int64
}

func (m *mockProfileService) Get(ctx context.Context, userID string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockProfileService) Update(ctx context.Context, userID string, displayName, photoURL *string) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, displayName, photoURL)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockProfileService) UploadPhoto(ctx context.Context, userID, filename string, data []byte) (*model.User, error) {
	if m.uploadPhotoFn != nil {
		return m.uploadPhotoFn(ctx, userID, filename, data)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockProfileService) MonthlyCompletions(ctx context.Context, userID string) ([]model.MonthlyCount, error) {
	if m.monthlyFn != nil {
		return m.monthlyFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileService) MaxPhotoBytes() int64 {
	if m.maxPhotoBytes > 0 {
		return m.maxPhotoBytes
	}
	return 1 << 20
}

// --- mockChatService ---

type mockChatService struct {
	postFn func(ctx context.Context, userID, text string) (*model.ChatMessage, error)
	listFn func(ctx context.Context, limit int) ([]*model.ChatMessage, error)
}

func (m *mockChatService) Post(ctx context.Context, userID, text string) (*model.ChatMessage, error) {
	if m.postFn != nil {
		return m.postFn(ctx, userID, text)
	}
	return &model.ChatMessage{ID: "msg-1", UserID: userID, Text: text}, nil
}

func (m *mockChatService) List(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit)
	}
	return nil, nil
}

// --- mockStream ---

type mockStream struct {
	servedUserID string
}

func (m *mockStream) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	m.servedUserID = userID
	w.WriteHeader(http.StatusOK)
}
