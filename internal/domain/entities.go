package domain

import (
	"time"

	"github.com/google/uuid"
)

// Consumer описывает пользователя Telegram, которого бот видел хотя бы раз.
// Name кэшируется при первой встрече и обновляется только массовым
// обновлением (bulk refresh), поэтому может устаревать.
type Consumer struct {
	ID        int64
	Name      string
	IsBot     bool
	EntryDate time.Time
}

// TopicKind определяет назначение форумной темы.
type TopicKind string

const (
	TopicAsk  TopicKind = "ask"
	TopicAdvt TopicKind = "advt"
	TopicNews TopicKind = "news"
)

// Topic привязывает форумную тему группы к пользователю и её назначению.
// Первичный ключ — идентификатор треда, выданный платформой при создании.
type Topic struct {
	ID        int64
	GroupID   int64
	Name      string
	OwnerID   int64
	Kind      TopicKind
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// Open сообщает, открыта ли тема.
func (t Topic) Open() bool {
	return t.ClosedAt == nil
}

// UpdateKind — вид входящего апдейта, сохраняемый в журнале активности.
type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateChannelPost UpdateKind = "channel_post"
)

// Activity — строка append-only журнала: одна на каждое входящее сообщение
// или пост канала. После вставки не изменяется.
type Activity struct {
	ID         uuid.UUID
	UpdateID   int64
	Kind       UpdateKind
	ChatKind   string
	Text       string
	Time       time.Time
	TopicID    *int64
	ConsumerID int64
}

// BanRecord фиксирует действующий бан пользователя в конкретном чате.
// На пару (consumer, chat) существует не более одной записи.
type BanRecord struct {
	ID         uuid.UUID
	ConsumerID int64
	Reason     string
	ChatID     int64
}

// SubscriptionEvent — вступление нового участника в привязанный канал.
type SubscriptionEvent struct {
	ID        uuid.UUID
	ChannelID int64
	EntryDate time.Time
}

// TopicStat — тема вместе с количеством её активностей, для статистики.
type TopicStat struct {
	Topic         Topic
	ActivityCount int
}

// TopicStatistic — агрегат по открытым (или закрытым за период) темам группы.
type TopicStatistic struct {
	CountAsk  int
	CountAdvt int
	CountNews int

	MessageInAskTopic  int
	MessageInAdvtTopic int
	MessageInNewsTopic int
}

// SubscribeStatistic — агрегат подписок канала по окнам времени.
// Пороги включающие: entryDate >= порога.
type SubscribeStatistic struct {
	Today      int
	Month      int
	ThreeMonth int
}

// RefreshJob — задача массового обновления имён пользователей.
// ChatID — чат, куда воркер отправит уведомления о начале и конце.
type RefreshJob struct {
	ChatID      int64     `json:"chat_id"`
	RequestedBy int64     `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
