// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/rhythmflow/internal/model"
	"github.com/hitoshi/rhythmflow/internal/repository"
)

// OwnerDataDeleter はユーザー所有データの一括削除インターフェース。
type OwnerDataDeleter interface {
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// Disconnector はユーザーのリアルタイム接続を切断するインターフェース。
type Disconnector interface {
	DisconnectUser(userID string)
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo          repository.UserRepository
	sessionRepo       repository.SessionRepository
	completionDeleter OwnerDataDeleter
	habitDeleter      OwnerDataDeleter
	disconnector      Disconnector
}

// NewService はServiceの新しいインスタンスを生成する。
// completionDeleter, habitDeleter, disconnectorはnilを許容する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	completionDeleter OwnerDataDeleter,
	habitDeleter OwnerDataDeleter,
	disconnector Disconnector,
) *Service {
	return &Service{
		userRepo:          userRepo,
		sessionRepo:       sessionRepo,
		completionDeleter: completionDeleter,
		habitDeleter:      habitDeleter,
		disconnector:      disconnector,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: completion_records → habits → sessions → user（+ CASCADE: identities）
// チャット投稿は投稿者名を残したままuser_idのみNULLになる。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 完了履歴と日次リセットマーカーを削除
	if s.completionDeleter != nil {
		if err := s.completionDeleter.DeleteByOwner(ctx, userID); err != nil {
			return fmt.Errorf("完了履歴の削除に失敗しました: %w", err)
		}
	}

	// 2. 習慣を削除
	if s.habitDeleter != nil {
		if err := s.habitDeleter.DeleteByOwner(ctx, userID); err != nil {
			return fmt.Errorf("習慣の削除に失敗しました: %w", err)
		}
	}

	// 3. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 4. ユーザーを削除（identitiesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	if s.disconnector != nil {
		s.disconnector.DisconnectUser(userID)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
