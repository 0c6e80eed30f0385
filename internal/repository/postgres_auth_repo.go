package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/rhythmflow/internal/model"
)

const (
	selectIdentityQuery = `SELECT id, user_id, provider, provider_user_id, password_hash, created_at
		FROM identities
		WHERE provider = $1 AND provider_user_id = $2`

	// 期限切れのセッションは存在しないものとして扱う。削除はcleanupジョブが行う。
	selectSessionQuery = `SELECT id, user_id, expires_at, created_at
		FROM sessions
		WHERE id = $1 AND expires_at > now()`
)

// PostgresIdentityRepo はGoogle・パスワード認証の紐付けをidentitiesテーブルで管理する。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// パスワード認証の場合provider_user_idは正規化済みメールアドレス。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var (
		identity     model.Identity
		passwordHash sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectIdentityQuery, provider, providerUserID).
		Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderUserID, &passwordHash, &identity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity %s: %w", provider, err)
	}
	identity.PasswordHash = passwordHash.String
	return &identity, nil
}

// PostgresSessionRepo はログインセッションをsessionsテーブルで管理する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByID は有効なセッションを返す。存在しないか期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.QueryRowContext(ctx, selectSessionQuery, id).
		Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &session, nil
}

// DeleteByID はログアウトしたセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.deleteWhere(ctx, "id", id)
}

// DeleteByUserID は退会したユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.deleteWhere(ctx, "user_id", userID)
}

// deleteWhere はcolumnが値に一致するセッションを削除する。columnは固定値のみ渡す。
func (r *PostgresSessionRepo) deleteWhere(ctx context.Context, column, value string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE `+column+` = $1`, value); err != nil {
		return fmt.Errorf("delete sessions by %s: %w", column, err)
	}
	return nil
}

var (
	_ IdentityRepository = (*PostgresIdentityRepo)(nil)
	_ SessionRepository  = (*PostgresSessionRepo)(nil)
)
