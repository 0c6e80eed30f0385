// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordHabitToggle(action string, changed bool)
	RecordToggleConflict()
	RecordStreakIncrement()
	RecordDailyReset()
	RecordHabitsSeeded(count int)
	RecordChatMessage()
	RecordNotificationDropped()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	habitToggles         *prometheus.CounterVec
	toggleConflicts      prometheus.Counter
	streakIncrements     prometheus.Counter
	dailyResets          prometheus.Counter
	habitsSeeded         prometheus.Counter
	chatMessages         prometheus.Counter
	notificationsDropped prometheus.Counter
	httpStatus           *prometheus.CounterVec
	requestLatency       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		habitToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhythmflow_habit_toggles_total",
			Help: "習慣の完了トグル数（action, changed別）",
		}, []string{"action", "changed"}),
		toggleConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmflow_toggle_conflicts_total",
			Help: "カウンタのcompare-and-setが失敗した回数",
		}),
		streakIncrements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmflow_streak_increments_total",
			Help: "全習慣の完了によるストリーク加算の合計数",
		}),
		dailyResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmflow_daily_resets_total",
			Help: "日次リセットの実行回数",
		}),
		habitsSeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmflow_habits_seeded_total",
			Help: "デフォルト習慣として登録した習慣の合計数",
		}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmflow_chat_messages_total",
			Help: "投稿されたチャットメッセージの合計数",
		}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhythmflow_notifications_dropped_total",
			Help: "送信バッファ溢れで配信できなかったリアルタイム通知の数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhythmflow_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rhythmflow_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.habitToggles,
		c.toggleConflicts,
		c.streakIncrements,
		c.dailyResets,
		c.habitsSeeded,
		c.chatMessages,
		c.notificationsDropped,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordHabitToggle は完了トグルを記録する。
func (c *Collector) RecordHabitToggle(action string, changed bool) {
	c.habitToggles.WithLabelValues(action, strconv.FormatBool(changed)).Inc()
}

// RecordToggleConflict はcompare-and-set失敗を記録する。
func (c *Collector) RecordToggleConflict() {
	c.toggleConflicts.Inc()
}

// RecordStreakIncrement はストリーク加算を記録する。
func (c *Collector) RecordStreakIncrement() {
	c.streakIncrements.Inc()
}

// RecordDailyReset は日次リセットを記録する。
func (c *Collector) RecordDailyReset() {
	c.dailyResets.Inc()
}

// RecordHabitsSeeded は登録したデフォルト習慣数を記録する。
func (c *Collector) RecordHabitsSeeded(count int) {
	c.habitsSeeded.Add(float64(count))
}

// RecordChatMessage はチャット投稿を記録する。
func (c *Collector) RecordChatMessage() {
	c.chatMessages.Inc()
}

// RecordNotificationDropped は配信できなかった通知を記録する。
func (c *Collector) RecordNotificationDropped() {
	c.notificationsDropped.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
