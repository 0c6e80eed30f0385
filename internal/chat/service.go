// Package chat は共有チャットルームへの投稿と履歴取得を提供する。
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/rhythmflow/internal/model"
	"github.com/hitoshi/rhythmflow/internal/repository"
	"github.com/hitoshi/rhythmflow/internal/security"
)

const (
	// MaxMessageLength はメッセージ本文の最大文字数。
	MaxMessageLength = 1000
	// DefaultHistoryLimit は履歴取得の既定件数。
	DefaultHistoryLimit = 50
	// MaxHistoryLimit は履歴取得の上限件数。
	MaxHistoryLimit = 200
)

// UserFinder はユーザー取得のインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Publisher は保存したメッセージを接続中のクライアントへ配信するインターフェース。
type Publisher interface {
	PublishChatMessage(msg *model.ChatMessage)
}

// MetricsRecorder はチャットのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordChatMessage()
}

// Service はチャットのサービス層。
type Service struct {
	repo         repository.ChatRepository
	users        UserFinder
	sanitizer    security.TextSanitizer
	publisher    Publisher
	metrics      MetricsRecorder
	historyLimit int
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// publisherとmetricsはnilを許容する。historyLimitが0以下の場合はDefaultHistoryLimit。
func NewService(
	repo repository.ChatRepository,
	users UserFinder,
	sanitizer security.TextSanitizer,
	publisher Publisher,
	metrics MetricsRecorder,
	historyLimit int,
) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		repo:         repo,
		users:        users,
		sanitizer:    sanitizer,
		publisher:    publisher,
		metrics:      metrics,
		historyLimit: min(historyLimit, MaxHistoryLimit),
		now:          time.Now,
	}
}

// Post はメッセージを投稿する。
// 空白のみのメッセージやHTML除去後に空になるメッセージはVALIDATION_FAILEDとする。
// 投稿者の表示名と写真URLは投稿時点の値を保存する。
func (s *Service) Post(ctx context.Context, userID, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewValidationError("メッセージを入力してください")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, model.NewValidationError("メッセージが長すぎます")
	}
	text = s.sanitizer.Sanitize(text)
	if text == "" {
		return nil, model.NewValidationError("メッセージに本文がありません")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	name := user.DisplayName
	if name == "" {
		name = "Anonymous"
	}
	msg := &model.ChatMessage{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		UserName:     name,
		UserPhotoURL: user.PhotoURL,
		Text:         text,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		slog.Error("chat message persist failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageUnavailableError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordChatMessage()
	}
	if s.publisher != nil {
		s.publisher.PublishChatMessage(msg)
	}
	return msg, nil
}

// List は直近のメッセージを投稿日時の昇順で返す。
// limitが0以下の場合は設定された既定件数、MaxHistoryLimitを超える場合はMaxHistoryLimit。
func (s *Service) List(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	limit = min(limit, MaxHistoryLimit)

	msgs, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}
	return msgs, nil
}
