// Package auth はOAuth認証フロー、メールアドレス・パスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/rhythmflow/internal/model"
	"github.com/hitoshi/rhythmflow/internal/repository"
)

const (
	// anonymousName は表示名が取得できない場合の表示名。
	anonymousName = "Anonymous"
	// minPasswordLength はパスワードの最小文字数。
	minPasswordLength = 8
	// maxPasswordBytes はbcryptが扱える最大バイト数。
	maxPasswordBytes = 72
	// maxDisplayNameLength は表示名の最大文字数。
	maxDisplayNameLength = 50
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	PhotoURL       string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// EventType はセッションイベントの種類。
type EventType string

const (
	// EventLogin はログイン（新規登録を含む）。
	EventLogin EventType = "login"
	// EventLogout はログアウト。
	EventLogout EventType = "logout"
)

// SessionEvent はログイン・ログアウトの通知内容。
type SessionEvent struct {
	Type   EventType
	UserID string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	// BcryptCost はパスワードハッシュのコスト。0の場合はbcrypt.DefaultCost。
	BcryptCost int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time

	mu        sync.Mutex
	observers map[int]func(SessionEvent)
	nextObsID int
}

// NewService はServiceを生成する。
// oauthがnilの場合、Googleログインは無効になる。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
		observers:   make(map[int]func(SessionEvent)),
	}
}

// GoogleEnabled はGoogleログインが設定されているかどうかを返す。
func (s *Service) GoogleEnabled() bool {
	return s.oauth != nil
}

// Subscribe はログイン・ログアウトの通知を受け取る関数を登録し、登録解除関数を返す。
func (s *Service) Subscribe(fn func(SessionEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(ev SessionEvent) {
	s.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", model.NewProviderDisabledError(model.ProviderGoogle)
	}
	return s.oauth.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はlast_login_atを更新してログインする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.oauth == nil {
		return nil, model.NewProviderDisabledError(model.ProviderGoogle)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}

	var userID string
	if identity != nil {
		// 3a. 既存ユーザー
		userID = identity.UserID
		if err := s.userRepo.TouchLastLogin(ctx, userID, s.now()); err != nil {
			return nil, model.NewStorageUnavailableError(err)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー
		var photoURL *string
		if userInfo.PhotoURL != "" {
			photoURL = &userInfo.PhotoURL
		}
		user, err := s.createUser(ctx, userInfo.Email, userInfo.Name, photoURL, &model.Identity{
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
		})
		if err != nil {
			return nil, err
		}
		userID = user.ID
	}

	return s.startSession(ctx, userID)
}

// SignUp はメールアドレスとパスワードで新規登録し、セッションを発行する。
// displayNameが空の場合は "Anonymous" とする。
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上にしてください", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return nil, model.NewValidationError("パスワードが長すぎます")
	}
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, model.NewValidationError("表示名が長すぎます")
	}

	existing, err := s.identRepo.FindByProviderAndProviderUserID(ctx, model.ProviderPassword, email)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.createUser(ctx, email, displayName, nil, &model.Identity{
		Provider:       model.ProviderPassword,
		ProviderUserID: email,
		PasswordHash:   string(hash),
	})
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user.ID)
}

// SignIn はメールアドレスとパスワードでログインし、セッションを発行する。
// メールアドレスの未登録とパスワード不一致は区別しない。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, model.ProviderPassword, email)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if identity == nil || identity.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			slog.Warn("password hash comparison failed",
				slog.String("user_id", identity.UserID),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.userRepo.TouchLastLogin(ctx, identity.UserID, s.now()); err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	slog.Info("existing user logged in",
		slog.String("user_id", identity.UserID),
		slog.String("provider", model.ProviderPassword),
	)
	return s.startSession(ctx, identity.UserID)
}

// Logout はセッションを破棄し、ログアウトを通知する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	if session != nil {
		s.emit(SessionEvent{Type: EventLogout, UserID: session.UserID})
	}
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createUser はusersレコードとidentitiesレコードを同時に作成する。
func (s *Service) createUser(ctx context.Context, email, name string, photoURL *string, identity *model.Identity) (*model.User, error) {
	now := s.now()
	if name == "" {
		name = anonymousName
	}
	user := &model.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: name,
		PhotoURL:    photoURL,
		LastLoginAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	identity.ID = uuid.New().String()
	identity.UserID = user.ID
	identity.CreatedAt = now

	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", identity.Provider),
	)
	return user, nil
}

// startSession はセッションを発行し、ログインを通知する。
func (s *Service) startSession(ctx context.Context, userID string) (*model.Session, error) {
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.emit(SessionEvent{Type: EventLogin, UserID: userID})
	return session, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// normalizeEmail はメールアドレスを検証し、小文字に正規化する。
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	return email, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
