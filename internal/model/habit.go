// Package model はドメインモデルを定義する。
package model

import "time"

// DateLayout は暦日（CompletionRecord.Date 等）の文字列表現。
const DateLayout = "2006-01-02"

// Habit はユーザーが毎日取り組む習慣を表す。
// 完了操作では変更されない。ScheduledTime は "4:00 AM" や "5:00 AM - 5:50 AM" 形式の表示用ラベル。
type Habit struct {
	ID            string
	OwnerID       string
	Text          string
	ScheduledTime string
	IconTag       string
	SortOrder     int
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CompletionRecord は (ユーザー, 習慣, 暦日) ごとの完了状態を表す。
// 同日中のトグルは追記ではなく上書きする。
type CompletionRecord struct {
	OwnerID   string
	HabitID   string
	Date      string // YYYY-MM-DD
	Completed bool
	UpdatedAt time.Time
}

// DailyResetMarker はユーザーの当日ビューが初期化済みかどうかを追跡する。
type DailyResetMarker struct {
	OwnerID       string
	LastResetDate string // YYYY-MM-DD
	UpdatedAt     time.Time
}

// HabitStatus は当日の完了状態を付与した習慣。
type HabitStatus struct {
	Habit
	CompletedToday bool
}

// DailyView は日次ビュー（当日の完了状態付き習慣一覧）を表す。
type DailyView struct {
	OwnerID string
	Date    string // YYYY-MM-DD
	Habits  []HabitStatus
	// Reset はこの呼び出しで日次リセットが実行された場合にtrue。
	Reset bool
}

// CompletedCount は当日完了済みの習慣数を返す。
func (v *DailyView) CompletedCount() int {
	n := 0
	for _, h := range v.Habits {
		if h.CompletedToday {
			n++
		}
	}
	return n
}

// AllCompleted は全ての習慣が当日完了済みかどうかを返す。
// 習慣が0件の場合はfalse。
func (v *DailyView) AllCompleted() bool {
	return len(v.Habits) > 0 && v.CompletedCount() == len(v.Habits)
}

// ToggleWrite は完了トグル1回分の永続化内容。
// レコードのUPSERTとカウンタ更新は同一トランザクションで行う。
// Previous はカウンタのcompare-and-setに使用する読み取り時点の値。
type ToggleWrite struct {
	Record   CompletionRecord
	Previous Counters
	Next     Counters
}

// ToggleResult は完了トグルの結果を表す。
type ToggleResult struct {
	View     DailyView
	Counters Counters
	// Changed は前提条件を満たし状態が変化した場合にtrue。
	// 既に目的の状態だった場合はfalse（書き込みなし）。
	Changed bool
}

// HabitCompletedEvent は他ユーザーへ通知する習慣完了イベント。
type HabitCompletedEvent struct {
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`
	HabitText string `json:"habitText"`
}

// HabitHistoryEntry は習慣詳細画面に表示する1日分の完了履歴。
type HabitHistoryEntry struct {
	Date      string
	Completed bool
}

// HabitDetail は習慣詳細画面のデータ。
type HabitDetail struct {
	Habit     Habit
	OwnerName string
	History   []HabitHistoryEntry
	// Editable は閲覧者が所有者で、時刻を編集できる場合にtrue。
	Editable bool
}

// MonthlyCount は月ごとの完了数を表す。
type MonthlyCount struct {
	Month  string // YYYY-MM
	Label  string // 英語の月名（例: "October"）
	Habits int
}

// LeaderboardEntry はリーダーボードの1行を表す。
type LeaderboardEntry struct {
	Rank        int
	UserID      string
	DisplayName string
	Email       string
	PhotoURL    *string
	Streak      int
	HabitScore  int
	// Progress は当日の進捗。progress指定時のみ設定される。
	Progress *DailyProgress
}

// DailyProgress は当日の完了数と習慣総数。
type DailyProgress struct {
	Completed int
	Total     int
}
