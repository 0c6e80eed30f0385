// Package cleanup は不要データの定期削除ジョブを提供する。
// 期限切れセッションと保持期間を超過した完了記録を削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は完了記録の既定の保持日数。
// 月別チャートが参照する直近6か月より十分長い。
const DefaultRetentionDays = 730

// minRetentionDays は月別チャートの集計範囲を削らないための下限。
const minRetentionDays = 186

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CleanupJob は期限切れセッションと古い完了記録の削除ジョブ。
// 何度実行しても結果が変わらない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 完了記録の保持日数
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: DefaultRetentionDays,
	}
}

// step は1つの削除クエリ。
type step struct {
	name  string
	query string
	args  []any
}

func (j *CleanupJob) steps() []step {
	days := j.RetentionDays
	if days < minRetentionDays {
		days = minRetentionDays
	}
	return []step{
		{
			name:  "sessions",
			query: `DELETE FROM sessions WHERE expires_at < now()`,
		},
		{
			name:  "completion_records",
			query: `DELETE FROM completion_records WHERE date < CURRENT_DATE - $1::interval`,
			args:  []any{fmt.Sprintf("%d days", days)},
		},
	}
}

// Run は期限切れセッションと保持期間を超過した完了記録を削除する。
// いずれかの削除に失敗しても残りは実行し、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var firstErr error
	var total int64
	for _, s := range j.steps() {
		n, err := j.exec(ctx, s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}

	j.logger.Info("cleanup job finished",
		slog.Int64("deleted_count", total),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return firstErr
}

func (j *CleanupJob) exec(ctx context.Context, s step) (int64, error) {
	result, err := j.db.ExecContext(ctx, s.query, s.args...)
	if err != nil {
		j.logger.Error("cleanup step failed",
			slog.String("target", s.name),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("cleanup %s: %w", s.name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read affected rows",
			slog.String("target", s.name),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("cleanup %s rows affected: %w", s.name, err)
	}

	j.logger.Debug("cleanup step done",
		slog.String("target", s.name),
		slog.Int64("deleted_count", n),
	)
	return n, nil
}

// Loop はintervalごとにジョブを実行する。起動直後にも1回実行する。
// ctxがキャンセルされると戻る。
func (j *CleanupJob) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = j.Run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
