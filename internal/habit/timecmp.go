package habit

import (
	"strings"
	"time"
)

// CompareTimeLabels は "4:00 AM" や "5:00 AM - 5:50 AM" 形式の時刻ラベルを開始時刻で比較する。
// 解析できないラベルは解析できるラベルより後ろに並べ、同順位は文字列比較で決める。
func CompareTimeLabels(a, b string) int {
	ta, okA := parseStartTime(a)
	tb, okB := parseStartTime(b)

	switch {
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	case okA && okB:
		if ta != tb {
			if ta < tb {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

// parseStartTime はラベルの開始時刻を0時からの経過分で返す。
func parseStartTime(label string) (int, bool) {
	start, _, _ := strings.Cut(label, "-")
	start = strings.ToUpper(strings.TrimSpace(start))
	if start == "" {
		return 0, false
	}

	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04"} {
		if t, err := time.Parse(layout, start); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}
