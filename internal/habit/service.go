// Package habit は習慣の日次ビュー、完了トグル、スコアリングのドメインロジックを提供する。
package habit

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/rhythmflow/internal/model"
	"github.com/hitoshi/rhythmflow/internal/optimistic"
	"github.com/hitoshi/rhythmflow/internal/repository"
)

const (
	// DefaultHistoryLimit は習慣詳細で返す完了履歴の既定件数。
	DefaultHistoryLimit = 30
	// maxTimeLabelLength は時刻ラベルの最大文字数。
	maxTimeLabelLength = 50
)

// UserFinder はユーザー取得のインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Notifier は習慣完了を他ユーザーへ通知するインターフェース。
// 配信はベストエフォートで、呼び出し側をブロックしてはならない。
type Notifier interface {
	NotifyHabitCompleted(event model.HabitCompletedEvent)
}

// MetricsRecorder は習慣操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordHabitToggle(action string, changed bool)
	RecordToggleConflict()
	RecordStreakIncrement()
	RecordDailyReset()
	RecordHabitsSeeded(count int)
}

// ServiceConfig はServiceの設定を表す。
type ServiceConfig struct {
	// Location は「今日」を決める基準タイムゾーン。nilの場合はUTC。
	Location *time.Location
	// HistoryLimit は習慣詳細で返す完了履歴の件数。0以下の場合はDefaultHistoryLimit。
	HistoryLimit int
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// Service は習慣のサービス層。
type Service struct {
	habitRepo      repository.HabitRepository
	completionRepo repository.CompletionRepository
	userRepo       UserFinder
	notifier       Notifier
	metrics        MetricsRecorder

	location     *time.Location
	historyLimit int
	now          func() time.Time
	locks        *userLocks
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierとmetricsはnilを許容する。
func NewService(
	habitRepo repository.HabitRepository,
	completionRepo repository.CompletionRepository,
	userRepo UserFinder,
	notifier Notifier,
	metrics MetricsRecorder,
	cfg ServiceConfig,
) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		habitRepo:      habitRepo,
		completionRepo: completionRepo,
		userRepo:       userRepo,
		notifier:       notifier,
		metrics:        metrics,
		location:       loc,
		historyLimit:   limit,
		now:            now,
		locks:          newUserLocks(),
	}
}

// Today は基準タイムゾーンでの今日の日付（YYYY-MM-DD）を返す。
func (s *Service) Today() string {
	return s.now().In(s.location).Format(model.DateLayout)
}

// DailyView は当日の完了状態付きの習慣一覧を返す。
// 習慣が未登録のユーザーにはデフォルト習慣を登録してから返す。
// その日最初の呼び出しでは当日分の完了状態をリセットし、全習慣を未完了として返す。
func (s *Service) DailyView(ctx context.Context, ownerID string) (*model.DailyView, error) {
	habits, err := s.ensureHabits(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	state, err := s.completionRepo.MaterializeDay(ctx, ownerID, today)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if state.Reset {
		slog.Debug("daily view reset",
			slog.String("user_id", ownerID),
			slog.String("date", today),
		)
		if s.metrics != nil {
			s.metrics.RecordDailyReset()
		}
	}

	view := &model.DailyView{
		OwnerID: ownerID,
		Date:    today,
		Habits:  make([]model.HabitStatus, len(habits)),
		Reset:   state.Reset,
	}
	for i, h := range habits {
		view.Habits[i] = model.HabitStatus{
			Habit:          *h,
			CompletedToday: !state.Reset && state.Completed[h.ID],
		}
	}
	return view, nil
}

// ensureHabits はユーザーの習慣を返す。1件もない場合はデフォルト習慣を登録する。
func (s *Service) ensureHabits(ctx context.Context, ownerID string) ([]*model.Habit, error) {
	habits, err := s.habitRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if len(habits) > 0 {
		return habits, nil
	}

	defaults := NewDefaultHabits(ownerID, s.now().UTC())
	seeded, err := s.habitRepo.SeedDefaults(ctx, ownerID, defaults)
	if err != nil {
		slog.Error("default habit seeding failed",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageUnavailableError(err)
	}
	if seeded {
		slog.Info("default habits seeded",
			slog.String("user_id", ownerID),
			slog.Int("count", len(defaults)),
		)
		if s.metrics != nil {
			s.metrics.RecordHabitsSeeded(len(defaults))
		}
	}

	habits, err = s.habitRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	return habits, nil
}

// Complete は習慣を完了にし、スコアとストリークを更新する。
func (s *Service) Complete(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error) {
	return s.toggle(ctx, ownerID, habitID, ActionComplete)
}

// Uncomplete は習慣の完了を取り消し、スコアとストリークを更新する。
func (s *Service) Uncomplete(ctx context.Context, ownerID, habitID string) (*model.ToggleResult, error) {
	return s.toggle(ctx, ownerID, habitID, ActionUncomplete)
}

// toggle は完了トグルを適用する。
// 同一ユーザーのトグルはプロセス内で直列化し、プロセス間の競合はカウンタの
// compare-and-setで検出する。永続化に失敗した場合はトグル前の状態とエラーを返す。
func (s *Service) toggle(ctx context.Context, ownerID, habitID string, action Action) (*model.ToggleResult, error) {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	user, err := s.userRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	view, err := s.DailyView(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	current := model.ToggleResult{View: *view, Counters: user.Counters()}

	_, found, changed := toggle(current.View, habitID, action)
	if !found {
		return nil, model.NewHabitNotFoundError(habitID)
	}
	if !changed {
		if s.metrics != nil {
			s.metrics.RecordHabitToggle(string(action), false)
		}
		return &current, nil
	}

	var habitText string
	for _, h := range current.View.Habits {
		if h.ID == habitID {
			habitText = h.Text
			break
		}
	}

	result, err := optimistic.Apply(ctx, current, optimistic.Transaction[model.ToggleResult]{
		Clone: cloneResult,
		Mutate: func(r model.ToggleResult) model.ToggleResult {
			allBefore := r.View.AllCompleted()
			next, _, _ := toggle(r.View, habitID, action)
			r.Counters = NextCounters(r.Counters, action, allBefore, next.AllCompleted())
			r.View = next
			r.Changed = true
			return r
		},
		Commit: func(ctx context.Context, next model.ToggleResult) error {
			return s.completionRepo.ApplyToggle(ctx, model.ToggleWrite{
				Record: model.CompletionRecord{
					OwnerID:   ownerID,
					HabitID:   habitID,
					Date:      current.View.Date,
					Completed: action == ActionComplete,
					UpdatedAt: s.now().UTC(),
				},
				Previous: current.Counters,
				Next:     next.Counters,
			})
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrCounterConflict) {
			slog.Warn("habit toggle conflict",
				slog.String("user_id", ownerID),
				slog.String("habit_id", habitID),
				slog.String("action", string(action)),
			)
			if s.metrics != nil {
				s.metrics.RecordToggleConflict()
			}
			return &result, model.NewToggleConflictError()
		}
		slog.Error("habit toggle failed",
			slog.String("user_id", ownerID),
			slog.String("habit_id", habitID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return &result, model.NewStorageUnavailableError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordHabitToggle(string(action), true)
		if result.Counters.Streak > current.Counters.Streak {
			s.metrics.RecordStreakIncrement()
		}
	}

	if action == ActionComplete && s.notifier != nil {
		actorName := user.DisplayName
		if actorName == "" {
			actorName = "Someone"
		}
		s.notifier.NotifyHabitCompleted(model.HabitCompletedEvent{
			ActorID:   ownerID,
			ActorName: actorName,
			HabitText: habitText,
		})
	}

	return &result, nil
}

// Detail は習慣の詳細と完了履歴を返す。
func (s *Service) Detail(ctx context.Context, viewerID, habitID string) (*model.HabitDetail, error) {
	h, err := s.habitRepo.FindByID(ctx, habitID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if h == nil {
		return nil, model.NewHabitNotFoundError(habitID)
	}

	owner, err := s.userRepo.FindByID(ctx, h.OwnerID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}

	history, err := s.completionRepo.ListByHabit(ctx, h.OwnerID, habitID, s.historyLimit)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}

	detail := &model.HabitDetail{
		Habit:    *h,
		History:  history,
		Editable: h.OwnerID == viewerID,
	}
	if owner != nil {
		detail.OwnerName = owner.DisplayName
	}
	return detail, nil
}

// UpdateTime は習慣の時刻ラベルを変更する。所有者のみ変更できる。
func (s *Service) UpdateTime(ctx context.Context, userID, habitID, label string) (*model.Habit, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, model.NewValidationError("時刻を入力してください")
	}
	if utf8.RuneCountInString(label) > maxTimeLabelLength {
		return nil, model.NewValidationError("時刻が長すぎます")
	}

	h, err := s.habitRepo.FindByID(ctx, habitID)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if h == nil {
		return nil, model.NewHabitNotFoundError(habitID)
	}
	if h.OwnerID != userID {
		return nil, model.NewForbiddenError()
	}

	updated, err := s.habitRepo.UpdateScheduledTime(ctx, habitID, userID, label)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if !updated {
		return nil, model.NewHabitNotFoundError(habitID)
	}

	h.ScheduledTime = label
	h.UpdatedAt = s.now().UTC()
	return h, nil
}

// SortByTime は習慣を時刻ラベルの開始時刻順に並べ替える。
// ラベルが同一の習慣は元の順序を保つ。
func SortByTime(habits []model.HabitStatus) {
	slices.SortStableFunc(habits, func(a, b model.HabitStatus) int {
		return CompareTimeLabels(a.ScheduledTime, b.ScheduledTime)
	})
}

func cloneResult(r model.ToggleResult) model.ToggleResult {
	r.View = cloneView(r.View)
	return r
}
