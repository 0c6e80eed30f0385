// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// ErrCounterConflict はカウンタのcompare-and-setが失敗したことを示す。
// 読み取り後に別の更新がコミットされた場合に返る。
var ErrCounterConflict = errors.New("user counters changed since read")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// TouchLastLogin はlast_login_atを更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdateProfile は表示名と写真URLを部分更新する。
	// nilの項目は変更しない。ユーザーが存在しない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, displayName, photoURL *string) (*model.User, error)

	// ListByScore は全ユーザーをhabit_score降順で返す。同点はid昇順。
	ListByScore(ctx context.Context) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、habits、completion_recordsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP・パスワード認証の紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// HabitRepository は習慣定義の永続化インターフェース。
type HabitRepository interface {
	// ListByOwner はユーザーの習慣をsort_order昇順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Habit, error)

	// FindByID は指定IDの習慣を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Habit, error)

	// SeedDefaults はユーザーが習慣を1件も持たない場合に限り、habitsを一括登録する。
	// 登録は単一トランザクションで行い、ユーザー単位のアドバイザリロックで直列化する。
	// 登録した場合はtrueを返す。
	SeedDefaults(ctx context.Context, ownerID string, habits []*model.Habit) (bool, error)

	// UpdateScheduledTime は習慣の時刻ラベルを更新する。
	// 所有者が一致しない場合は更新せずfalseを返す。
	UpdateScheduledTime(ctx context.Context, id, ownerID, label string) (bool, error)

	// DeleteByOwner はユーザーの全習慣を削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// DayState は日次ビューの永続化側の状態。
type DayState struct {
	// Reset はこの呼び出しで当日分の完了レコードをリセットした場合にtrue。
	Reset bool
	// Completed はhabitID -> 当日完了済みかどうか。レコードがない習慣は含まれない。
	Completed map[string]bool
}

// CompletionRepository は完了履歴と日次リセットマーカーの永続化インターフェース。
type CompletionRepository interface {
	// MaterializeDay は当日の完了状態を単一トランザクションで確定する。
	// リセットマーカーを行ロックし、last_reset_date < today なら当日分のレコードを削除して
	// マーカーを更新する。そうでなければ当日分のレコードを返す。
	MaterializeDay(ctx context.Context, ownerID, today string) (*DayState, error)

	// ApplyToggle は完了レコードのUPSERTとカウンタ更新を同一トランザクションで行う。
	// カウンタがPreviousと一致しない場合はロールバックしErrCounterConflictを返す。
	ApplyToggle(ctx context.Context, write model.ToggleWrite) error

	// ListByHabit は習慣の完了履歴を日付降順で最大limit件返す。
	ListByHabit(ctx context.Context, ownerID, habitID string, limit int) ([]model.HabitHistoryEntry, error)

	// CountCompletedByMonth は [from, to) の期間の完了数をYYYY-MMごとに集計する。
	// 完了のない月はmapに含まれない。
	CountCompletedByMonth(ctx context.Context, ownerID, from, to string) (map[string]int, error)

	// DeleteByOwner はユーザーの全完了レコードとリセットマーカーを削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// ChatRepository はチャットメッセージの永続化インターフェース。
type ChatRepository interface {
	// Create はメッセージを保存する。
	Create(ctx context.Context, msg *model.ChatMessage) error

	// ListRecent は直近limit件のメッセージを投稿日時の昇順で返す。
	ListRecent(ctx context.Context, limit int) ([]*model.ChatMessage, error)
}
