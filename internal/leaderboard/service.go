// Package leaderboard はhabit score順のユーザーランキングを提供する。
package leaderboard

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// DefaultConcurrency は進捗取得の既定の並列数。
const DefaultConcurrency = 8

// UserLister はスコア順のユーザー一覧取得インターフェース。
type UserLister interface {
	ListByScore(ctx context.Context) ([]*model.User, error)
}

// DailyViewer はユーザーの当日ビュー取得インターフェース。
type DailyViewer interface {
	DailyView(ctx context.Context, ownerID string) (*model.DailyView, error)
}

// Service はリーダーボードのサービス層。
type Service struct {
	users       UserLister
	viewer      DailyViewer
	concurrency int
}

// NewService はServiceの新しいインスタンスを生成する。
// concurrencyが0以下の場合はDefaultConcurrency。
func NewService(users UserLister, viewer DailyViewer, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{users: users, viewer: viewer, concurrency: concurrency}
}

// List は全ユーザーをhabit score降順で返す。同点は保存順（ID昇順）。
// withProgressがtrueの場合、各ユーザーの当日ビューを取得して進捗を付与する。
// 進捗の取得に1件でも失敗した場合はエラーを返す。
func (s *Service) List(ctx context.Context, withProgress bool) ([]model.LeaderboardEntry, error) {
	users, err := s.users.ListByScore(ctx)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}

	entries := make([]model.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = model.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			PhotoURL:    u.PhotoURL,
			Streak:      u.Streak,
			HabitScore:  u.HabitScore,
		}
	}
	if !withProgress || len(entries) == 0 {
		return entries, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range entries {
		g.Go(func() error {
			view, err := s.viewer.DailyView(gctx, entries[i].UserID)
			if err != nil {
				return err
			}
			// 各ゴルーチンは自分のインデックスにのみ書き込む
			entries[i].Progress = &model.DailyProgress{
				Completed: view.CompletedCount(),
				Total:     len(view.Habits),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, model.NewStorageUnavailableError(err)
	}
	return entries, nil
}
