package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// PostgresHabitRepo はPostgreSQLを使用した習慣リポジトリ。
type PostgresHabitRepo struct {
	db *sql.DB
}

// NewPostgresHabitRepo はPostgresHabitRepoを生成する。
func NewPostgresHabitRepo(db *sql.DB) *PostgresHabitRepo {
	return &PostgresHabitRepo{db: db}
}

const habitColumns = `id, owner_id, text, scheduled_time, icon_tag, sort_order, description, created_at, updated_at`

func scanHabit(row rowScanner) (*model.Habit, error) {
	h := &model.Habit{}
	err := row.Scan(
		&h.ID, &h.OwnerID, &h.Text, &h.ScheduledTime, &h.IconTag,
		&h.SortOrder, &h.Description, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ListByOwner はユーザーの習慣をsort_order昇順で返す。
func (r *PostgresHabitRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Habit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+habitColumns+`
		 FROM habits
		 WHERE owner_id = $1
		 ORDER BY sort_order ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("習慣一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var habits []*model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("習慣のスキャンに失敗しました: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("習慣一覧の走査に失敗しました: %w", err)
	}
	return habits, nil
}

// FindByID は指定IDの習慣を取得する。見つからない場合はnilを返す。
func (r *PostgresHabitRepo) FindByID(ctx context.Context, id string) (*model.Habit, error) {
	h, err := scanHabit(r.db.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("習慣の取得に失敗しました: %w", err)
	}
	return h, nil
}

// SeedDefaults はユーザーが習慣を1件も持たない場合に限り、habitsを一括登録する。
// 同一ユーザーの同時初回アクセスはpg_advisory_xact_lockで直列化し、
// 2件目以降のトランザクションは件数チェックで何もせずに終わる。
func (r *PostgresHabitRepo) SeedDefaults(ctx context.Context, ownerID string, habits []*model.Habit) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "seed:"+ownerID); err != nil {
		return false, fmt.Errorf("failed to acquire seed lock: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM habits WHERE owner_id = $1`,
		ownerID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count habits: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO habits (`+habitColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	)
	if err != nil {
		return false, fmt.Errorf("failed to prepare habit insert: %w", err)
	}
	defer stmt.Close()

	for _, h := range habits {
		if _, err := stmt.ExecContext(ctx,
			h.ID, ownerID, h.Text, h.ScheduledTime, h.IconTag,
			h.SortOrder, h.Description, h.CreatedAt, h.UpdatedAt,
		); err != nil {
			return false, fmt.Errorf("failed to insert habit %q: %w", h.Text, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// UpdateScheduledTime は習慣の時刻ラベルを更新する。
// 所有者が一致しない場合は更新せずfalseを返す。
func (r *PostgresHabitRepo) UpdateScheduledTime(ctx context.Context, id, ownerID, label string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE habits SET scheduled_time = $3, updated_at = now()
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID, label,
	)
	if err != nil {
		return false, fmt.Errorf("習慣の時刻更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByOwner はユーザーの全習慣を削除する。
func (r *PostgresHabitRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM habits WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("習慣の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ HabitRepository = (*PostgresHabitRepo)(nil)
