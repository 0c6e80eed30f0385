package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// PostgresCompletionRepo はPostgreSQLを使用した完了履歴リポジトリ。
// 日付はYYYY-MM-DD文字列で受け渡し、DB側ではDATE型として扱う。
type PostgresCompletionRepo struct {
	db *sql.DB
}

// NewPostgresCompletionRepo はPostgresCompletionRepoを生成する。
func NewPostgresCompletionRepo(db *sql.DB) *PostgresCompletionRepo {
	return &PostgresCompletionRepo{db: db}
}

// MaterializeDay は当日の完了状態を単一トランザクションで確定する。
// マーカーが存在しない場合は遠い過去のマーカーを作成してからロックするため、
// 同一ユーザーの初回の呼び出し同士も直列化される。
func (r *PostgresCompletionRepo) MaterializeDay(ctx context.Context, ownerID, today string) (*DayState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 初回でもロック対象の行が存在するよう、遠い過去のマーカーを先に作る
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO daily_reset_markers (owner_id, last_reset_date, updated_at)
		 VALUES ($1, 'epoch'::date, now())
		 ON CONFLICT (owner_id) DO NOTHING`,
		ownerID,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure reset marker: %w", err)
	}

	var lastReset string
	if err := tx.QueryRowContext(ctx,
		`SELECT to_char(last_reset_date, 'YYYY-MM-DD')
		 FROM daily_reset_markers
		 WHERE owner_id = $1
		 FOR UPDATE`,
		ownerID,
	).Scan(&lastReset); err != nil {
		return nil, fmt.Errorf("failed to load reset marker: %w", err)
	}
	needsReset := lastReset < today

	state := &DayState{Completed: map[string]bool{}}

	if needsReset {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM completion_records WHERE owner_id = $1 AND date = $2::date`,
			ownerID, today,
		); err != nil {
			return nil, fmt.Errorf("failed to clear today's records: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE daily_reset_markers
			 SET last_reset_date = $2::date, updated_at = now()
			 WHERE owner_id = $1`,
			ownerID, today,
		); err != nil {
			return nil, fmt.Errorf("failed to upsert reset marker: %w", err)
		}
		state.Reset = true
	} else {
		rows, err := tx.QueryContext(ctx,
			`SELECT habit_id, completed
			 FROM completion_records
			 WHERE owner_id = $1 AND date = $2::date`,
			ownerID, today,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list today's records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var habitID string
			var completed bool
			if err := rows.Scan(&habitID, &completed); err != nil {
				return nil, fmt.Errorf("failed to scan completion record: %w", err)
			}
			state.Completed[habitID] = completed
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate completion records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return state, nil
}

// ApplyToggle は完了レコードのUPSERTとカウンタ更新を同一トランザクションで行う。
// カウンタがPreviousと一致しない場合はロールバックしErrCounterConflictを返す。
func (r *PostgresCompletionRepo) ApplyToggle(ctx context.Context, write model.ToggleWrite) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := write.Record
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO completion_records (owner_id, habit_id, date, completed, updated_at)
		 VALUES ($1, $2, $3::date, $4, $5)
		 ON CONFLICT (owner_id, habit_id, date) DO UPDATE
		 SET completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at`,
		rec.OwnerID, rec.HabitID, rec.Date, rec.Completed, rec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert completion record: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET streak = $2, habit_score = $3, updated_at = now()
		 WHERE id = $1 AND streak = $4 AND habit_score = $5`,
		rec.OwnerID, write.Next.Streak, write.Next.HabitScore,
		write.Previous.Streak, write.Previous.HabitScore,
	)
	if err != nil {
		return fmt.Errorf("failed to update counters: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCounterConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByHabit は習慣の完了履歴を日付降順で最大limit件返す。
func (r *PostgresCompletionRepo) ListByHabit(ctx context.Context, ownerID, habitID string, limit int) ([]model.HabitHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(date, 'YYYY-MM-DD'), completed
		 FROM completion_records
		 WHERE owner_id = $1 AND habit_id = $2
		 ORDER BY date DESC
		 LIMIT $3`,
		ownerID, habitID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list habit history: %w", err)
	}
	defer rows.Close()

	var entries []model.HabitHistoryEntry
	for rows.Next() {
		var e model.HabitHistoryEntry
		if err := rows.Scan(&e.Date, &e.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan habit history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate habit history: %w", err)
	}
	return entries, nil
}

// CountCompletedByMonth は [from, to) の期間の完了数をYYYY-MMごとに集計する。
func (r *PostgresCompletionRepo) CountCompletedByMonth(ctx context.Context, ownerID, from, to string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(date, 'YYYY-MM') AS month, count(*)
		 FROM completion_records
		 WHERE owner_id = $1 AND completed = true
		   AND date >= $2::date AND date < $3::date
		 GROUP BY month`,
		ownerID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count monthly completions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, fmt.Errorf("failed to scan monthly count: %w", err)
		}
		counts[month] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monthly counts: %w", err)
	}
	return counts, nil
}

// DeleteByOwner はユーザーの全完了レコードとリセットマーカーを削除する。
func (r *PostgresCompletionRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM completion_records WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete completion records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_reset_markers WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete reset marker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CompletionRepository = (*PostgresCompletionRepo)(nil)
