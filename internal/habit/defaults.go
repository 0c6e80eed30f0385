package habit

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// defaultHabit は新規ユーザーに登録する習慣のテンプレート。
type defaultHabit struct {
	Text        string
	Time        string
	Icon        string
	Description string
}

// defaultHabits は新規ユーザーに登録する29件の習慣。並び順がsort_orderになる。
var defaultHabits = []defaultHabit{
	{"Wake up", "4:00 AM", "Sunrise", "Get out of bed as soon as the alarm rings."},
	{"Make bed", "4:01 AM", "Bed", "A made bed is the first finished task of the day."},
	{"Brush teeth", "4:03 AM", "Tooth", "Two minutes, every tooth."},
	{"Drink a glass of water", "4:06 AM", "GlassWater", "Rehydrate after the night."},
	{"Shower", "4:07 AM", "ShowerHead", "A cold finish helps you wake up."},
	{"Meditation (20 min)", "4:20 AM", "BrainCircuit", "Sit still and follow your breath for twenty minutes."},
	{"Warm up and pushups", "4:40 AM", "Flame", "Light mobility work followed by a set of pushups."},
	{"Coffee/Tea", "4:50 AM", "Coffee", "One cup before the first study block."},
	{"Study session 1", "5:00 AM - 5:50 AM", "BookOpen", "Fifty minutes of focused study."},
	{"Break", "5:50 AM - 6:00 AM", "Timer", "Step away from the desk."},
	{"Study session 2", "6:00 AM - 6:50 AM", "BookOpen", "Fifty minutes of focused study."},
	{"Watch sunrise", "6:50 AM - 7:00 AM", "Sun", "Get some daylight."},
	{"Breakfast & prepare for work", "7:00 AM - 8:00 AM", "Utensils", "Eat well and get ready for the day."},
	{"Study session 3", "8:00 AM - 8:50 AM", "BookOpen", "Fifty minutes of focused study."},
	{"Study session 4", "9:00 AM - 9:50 AM", "BookOpen", "Fifty minutes of focused study."},
	{"Study session 5", "10:00 AM - 10:50 AM", "BookOpen", "Fifty minutes of focused study."},
	{"Study session 6", "11:00 AM - 11:50 AM", "BookOpen", "Fifty minutes of focused study."},
	{"Break/Relax", "12:00 PM - 1:00 PM", "Gamepad2", "Unwind before lunch."},
	{"Lunch", "1:00 PM - 2:00 PM", "Pizza", "A proper meal away from screens."},
	{"Study session 7", "2:00 PM - 2:50 PM", "BookOpen", "Fifty minutes of focused study."},
	{"Study session 8", "3:00 PM - 3:50 PM", "BookOpen", "Fifty minutes of focused study."},
	{"Study session 9", "4:00 PM - 4:50 PM", "BookOpen", "Fifty minutes of focused study."},
	{"Study session 10", "5:00 PM - 5:50 PM", "BookOpen", "Fifty minutes of focused study."},
	{"Watch sunset", "6:00 PM - 7:00 PM", "Sunset", "Close the working day outdoors."},
	{"Workout", "7:00 PM - 7:50 PM", "Dumbbell", "Strength or cardio training."},
	{"Shower", "7:50 PM", "ShowerHead", "Wash off the workout."},
	{"Dinner & relax", "8:00 PM - 9:00 PM", "Clapperboard", "Dinner and something fun to watch."},
	{"Study session 11", "9:00 PM - 9:50 PM", "BookOpen", "A light review of the day's material."},
	{"Go to bed", "9:50 PM", "BedDouble", "Lights out to be up again at four."},
}

// DefaultHabitCount は新規ユーザーに登録される習慣数。
var DefaultHabitCount = len(defaultHabits)

// NewDefaultHabits はownerID向けのデフォルト習慣を生成する。
func NewDefaultHabits(ownerID string, now time.Time) []*model.Habit {
	habits := make([]*model.Habit, len(defaultHabits))
	for i, d := range defaultHabits {
		habits[i] = &model.Habit{
			ID:            uuid.New().String(),
			OwnerID:       ownerID,
			Text:          d.Text,
			ScheduledTime: d.Time,
			IconTag:       d.Icon,
			SortOrder:     i + 1,
			Description:   d.Description,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	return habits
}
