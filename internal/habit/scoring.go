package habit

import "github.com/hitoshi/rhythmflow/internal/model"

// Action は完了トグルの種類。
type Action string

const (
	// ActionComplete は習慣を完了にする。
	ActionComplete Action = "complete"
	// ActionUncomplete は習慣の完了を取り消す。
	ActionUncomplete Action = "uncomplete"
)

// NextCounters はトグル1回分のストリークとスコアを計算する。
//
// complete: スコア+1。トグル後に全習慣が完了していればストリーク+1。
// uncomplete: スコア-1。トグル前に全習慣が完了していればストリーク-1。
// いずれも0未満にはならない。
func NextCounters(prev model.Counters, action Action, allBefore, allAfter bool) model.Counters {
	next := prev
	switch action {
	case ActionComplete:
		next.HabitScore++
		if allAfter {
			next.Streak++
		}
	case ActionUncomplete:
		next.HabitScore = max(0, next.HabitScore-1)
		if allBefore {
			next.Streak = max(0, next.Streak-1)
		}
	}
	return next
}

// toggle はビュー内の習慣の完了状態を変更したコピーを返す。
// 前提条件（complete なら未完了、uncomplete なら完了済み）を満たさない場合はchanged=false。
// 習慣がビューに存在しない場合はfound=false。
func toggle(view model.DailyView, habitID string, action Action) (next model.DailyView, found, changed bool) {
	next = cloneView(view)
	for i := range next.Habits {
		if next.Habits[i].ID != habitID {
			continue
		}
		want := action == ActionComplete
		if next.Habits[i].CompletedToday == want {
			return view, true, false
		}
		next.Habits[i].CompletedToday = want
		return next, true, true
	}
	return view, false, false
}

// cloneView はHabitsスライスを複製したビューを返す。
func cloneView(v model.DailyView) model.DailyView {
	v.Habits = append([]model.HabitStatus(nil), v.Habits...)
	return v
}
