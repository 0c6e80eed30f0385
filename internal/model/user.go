// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーとそのプロフィールを表す。
// Streak と HabitScore は常に0以上（DBのCHECK制約でも保証する）。
type User struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    *string
	Streak      int
	HabitScore  int
	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Counters はスコアリングルールが更新するユーザーのカウンタ。
type Counters struct {
	Streak     int
	HabitScore int
}

// Counters はユーザーの現在のカウンタを返す。
func (u *User) Counters() Counters {
	return Counters{Streak: u.Streak, HabitScore: u.HabitScore}
}

// Identity は外部IdPまたはパスワード認証との紐付け情報を表す。
// Provider が "password" の場合、ProviderUserID は正規化済みメールアドレス、
// PasswordHash はbcryptハッシュを保持する。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	PasswordHash   string
	CreatedAt      time.Time
}

// 認証プロバイダー名
const (
	ProviderGoogle   = "google"
	ProviderPassword = "password"
)

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
