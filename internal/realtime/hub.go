// Package realtime はチャット投稿と習慣完了通知のプロセス内配信を提供する。
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// トピック名
const (
	TopicChatMessage    = "chat_message"
	TopicHabitCompleted = "habit_completed"
)

// DefaultClientBuffer は接続ごとの送信バッファの既定サイズ。
const DefaultClientBuffer = 32

// Event はクライアントへ配信するイベント。
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	// ExcludeUserID は接続クライアントへの配信から除外したユーザーID。
	// クライアントには送信しない。
	ExcludeUserID string `json:"-"`
}

// DropRecorder は配信できずに破棄した通知を記録するインターフェース。
type DropRecorder interface {
	RecordNotificationDropped()
}

// chatMessagePayload はchat_messageイベントのペイロード。
type chatMessagePayload struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserPhotoURL *string   `json:"userPhotoURL,omitempty"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Client はハブに登録された1接続を表す。
type Client struct {
	userID string
	send   chan []byte
}

// UserID は接続ユーザーのIDを返す。
func (c *Client) UserID() string {
	return c.userID
}

// Messages は配信されるJSONメッセージのチャネルを返す。
// ハブから切断されるとクローズされる。
func (c *Client) Messages() <-chan []byte {
	return c.send
}

type subscriber struct {
	topic string
	fn    func(Event)
}

// Hub はトピック購読者と接続クライアントへのファンアウトを行う。
// 配信は最大1回のベストエフォートで、送信バッファが満杯のクライアントは切断する。
type Hub struct {
	mu          sync.Mutex
	clients     map[string]map[*Client]struct{}
	subscribers map[uint64]subscriber
	nextSubID   uint64
	bufferSize  int
	metrics     DropRecorder
}

// NewHub はHubの新しいインスタンスを生成する。
// bufferSizeが0以下の場合はDefaultClientBuffer。metricsはnilを許容する。
func NewHub(bufferSize int, metrics DropRecorder) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultClientBuffer
	}
	return &Hub{
		clients:     make(map[string]map[*Client]struct{}),
		subscribers: make(map[uint64]subscriber),
		bufferSize:  bufferSize,
		metrics:     metrics,
	}
}

// Subscribe はトピックのイベントを受け取る関数を登録し、登録解除関数を返す。
// fnはPublishを呼び出したゴルーチンで同期的に呼ばれる。
// 購読者は除外ユーザーに関係なく全イベントを受け取る。除外対象はEvent.ExcludeUserIDで判別する。
func (h *Hub) Subscribe(topic string, fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = subscriber{topic: topic, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

// Register はユーザーの接続を登録する。
func (h *Hub) Register(userID string) *Client {
	c := &Client{userID: userID, send: make(chan []byte, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	return c
}

// Unregister は接続の登録を解除し、送信チャネルをクローズする。
// 既に解除済みの場合は何もしない。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// DisconnectUser はユーザーの全接続を切断する。ログアウト時に呼ばれる。
func (h *Hub) DisconnectUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		h.removeLocked(c)
	}
}

// DisconnectAll は全接続を切断する。サーバー停止時に呼ばれる。
func (h *Hub) DisconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

// ClientCount は登録中の接続数を返す。
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Publish はイベントを購読者と接続クライアントへ配信する。
// excludeUserIDが空でない場合、そのユーザーの接続には配信しない。
// 購読者にはexcludeUserIDを設定したイベントをそのまま渡す。
func (h *Hub) Publish(topic string, payload any, excludeUserID string) {
	ev := Event{Type: topic, Payload: payload, ExcludeUserID: excludeUserID}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("realtime event encode failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.Lock()
	var fns []func(Event)
	for _, sub := range h.subscribers {
		if sub.topic == topic {
			fns = append(fns, sub.fn)
		}
	}
	dropped := 0
	for userID, set := range h.clients {
		if userID == excludeUserID {
			continue
		}
		for c := range set {
			select {
			case c.send <- data:
			default:
				h.removeLocked(c)
				dropped++
			}
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		slog.Warn("slow realtime clients dropped",
			slog.String("topic", topic),
			slog.Int("count", dropped),
		)
		if h.metrics != nil {
			for range dropped {
				h.metrics.RecordNotificationDropped()
			}
		}
	}

	for _, fn := range fns {
		fn(ev)
	}
}

// NotifyHabitCompleted は習慣完了を完了したユーザー以外へ配信する。
func (h *Hub) NotifyHabitCompleted(event model.HabitCompletedEvent) {
	h.Publish(TopicHabitCompleted, event, event.ActorID)
}

// PublishChatMessage はチャット投稿を全接続へ配信する。
func (h *Hub) PublishChatMessage(msg *model.ChatMessage) {
	h.Publish(TopicChatMessage, chatMessagePayload{
		ID:           msg.ID,
		UserID:       msg.UserID,
		UserName:     msg.UserName,
		UserPhotoURL: msg.UserPhotoURL,
		Text:         msg.Text,
		CreatedAt:    msg.CreatedAt,
	}, "")
}

func (h *Hub) removeLocked(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, exists := set[c]; !exists {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}
