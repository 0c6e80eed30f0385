package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// PostgresChatRepo はPostgreSQLを使用したチャットリポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// Create はメッセージを保存する。
func (r *PostgresChatRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, user_id, user_name, user_photo_url, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, nullString(msg.UserID), msg.UserName, nullStringFromPtr(msg.UserPhotoURL), msg.Text, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("チャットメッセージの保存に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は直近limit件のメッセージを投稿日時の昇順で返す。
// 退会済みユーザーのメッセージはUserIDが空文字になる。
func (r *PostgresChatRepo) ListRecent(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, user_name, user_photo_url, text, created_at
		 FROM (
		   SELECT id, user_id, user_name, user_photo_url, text, created_at
		   FROM chat_messages
		   ORDER BY created_at DESC, id DESC
		   LIMIT $1
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("チャットメッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var msgs []*model.ChatMessage
	for rows.Next() {
		msg := &model.ChatMessage{}
		var userID, photoURL sql.NullString
		if err := rows.Scan(&msg.ID, &userID, &msg.UserName, &photoURL, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("チャットメッセージのスキャンに失敗しました: %w", err)
		}
		msg.UserID = userID.String
		msg.UserPhotoURL = nullStringPtr(photoURL)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャットメッセージ一覧の走査に失敗しました: %w", err)
	}
	return msgs, nil
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
