package domain

import (
	"context"
	"time"
)

// ConsumerRepo управляет пользователями.
type ConsumerRepo interface {
	// GetOrCreate вставляет пользователя, если его ещё нет, и возвращает
	// сохранённую запись. Имя существующей записи не трогает.
	GetOrCreate(ctx context.Context, consumer Consumer) (Consumer, error)
	GetByID(ctx context.Context, id int64) (Consumer, error)
	GetByName(ctx context.Context, name string) (Consumer, error)
	ListConsumers(ctx context.Context) ([]Consumer, error)
	UpdateName(ctx context.Context, id int64, name string) error
}

// TopicRepo управляет форумными темами.
type TopicRepo interface {
	CreateTopic(ctx context.Context, topic Topic) error
	// FindOpen возвращает открытую тему по тройке (группа, владелец, вид).
	FindOpen(ctx context.Context, groupID, ownerID int64, kind TopicKind) (Topic, error)
	// FindOpenByThread возвращает открытую тему группы по идентификатору треда.
	FindOpenByThread(ctx context.Context, groupID, threadID int64) (Topic, error)
	// FindByThread ищет тему по идентификатору треда независимо от статуса.
	FindByThread(ctx context.Context, threadID int64) (Topic, error)
	CloseTopic(ctx context.Context, threadID int64, at time.Time) error
	// ListOpenStats возвращает открытые темы группы с количеством активностей.
	ListOpenStats(ctx context.Context, groupID int64) ([]TopicStat, error)
	// ListClosedStatsSince возвращает закрытые темы группы, созданные не раньше since.
	ListClosedStatsSince(ctx context.Context, groupID int64, since time.Time) ([]TopicStat, error)
}

// ActivityRepo ведёт append-only журнал активности.
type ActivityRepo interface {
	CreateActivity(ctx context.Context, activity Activity) error
	// ListByTopic возвращает активности темы в порядке возрастания времени.
	ListByTopic(ctx context.Context, topicID int64) ([]Activity, error)
}

// BanRepo управляет записями о банах.
type BanRepo interface {
	// UpsertBan создаёт запись или заменяет причину существующей
	// для той же пары (consumer, chat).
	UpsertBan(ctx context.Context, ban BanRecord) error
	FindBan(ctx context.Context, consumerID, chatID int64) (BanRecord, error)
	DeleteBan(ctx context.Context, consumerID, chatID int64) error
}

// SubscriptionRepo ведёт журнал вступлений в канал.
type SubscriptionRepo interface {
	CreateSubscription(ctx context.Context, event SubscriptionEvent) error
	ListByChannel(ctx context.Context, channelID int64) ([]SubscriptionEvent, error)
}

// Markup — вид клавиатуры исходящего сообщения.
type Markup int

const (
	MarkupNone Markup = iota
	// MarkupForceReply просит платформу подставить ответ на это сообщение.
	MarkupForceReply
	MarkupPrivateMenu
	MarkupGroupMenu
)

// OutgoingMessage — текстовое сообщение для отправки.
// ThreadID нулевой вне форумных тем.
type OutgoingMessage struct {
	ChatID   int64
	ThreadID int
	Text     string
	Markup   Markup
}

// Messenger отправляет сообщения и документы от имени бота.
type Messenger interface {
	// SendMessage возвращает идентификатор отправленного сообщения.
	SendMessage(ctx context.Context, msg OutgoingMessage) (int, error)
	// SendDocument пересылает документ по file id.
	SendDocument(ctx context.Context, chatID int64, threadID int, fileID, caption string) error
	ChatMemberCount(ctx context.Context, chatID int64) (int, error)
}

// ForumManager создаёт и удаляет форумные темы группы.
type ForumManager interface {
	// CreateTopic возвращает идентификатор треда новой темы.
	CreateTopic(ctx context.Context, groupID int64, name string) (int64, error)
	DeleteTopic(ctx context.Context, groupID, threadID int64) error
}

// Moderator управляет членством пользователей в чате.
type Moderator interface {
	IsChatMember(ctx context.Context, chatID, userID int64) (bool, error)
	Ban(ctx context.Context, chatID, userID int64) error
	Unban(ctx context.Context, chatID, userID int64) error
}

// NameResolver получает актуальное имя пользователя у платформы.
type NameResolver interface {
	Username(ctx context.Context, userID int64) (string, error)
}

// Bindings хранит привязанные группу и канал. Значение 0 означает,
// что привязки нет.
type Bindings interface {
	Group() (int64, error)
	SetGroup(id int64) error
	// UnsetGroup сбрасывает привязку, только если хранится именно id.
	UnsetGroup(id int64) error
	Channel() (int64, error)
	SetChannel(id int64) error
	UnsetChannel(id int64) error
}

// PendingKind — вид ожидаемого ответа пользователя.
type PendingKind string

const (
	PendingAskText        PendingKind = "ask_text"
	PendingAdvtText       PendingKind = "advt_text"
	PendingNewsText       PendingKind = "news_text"
	PendingAdminReply     PendingKind = "admin_reply"
	PendingRefreshConfirm PendingKind = "refresh_confirm"
)

// PendingInteraction — ожидание ответа на отправленный ботом промпт.
// PromptID — идентификатор сообщения-промпта, TopicID заполняется
// только для PendingAdminReply.
type PendingInteraction struct {
	Kind     PendingKind `json:"kind"`
	PromptID int         `json:"prompt_id"`
	TopicID  int64       `json:"topic_id,omitempty"`
}

// PendingStore хранит ожидания по идентификатору пользователя
// с небольшим сроком жизни.
type PendingStore interface {
	Put(ctx context.Context, userID int64, pending PendingInteraction) error
	Get(ctx context.Context, userID int64) (PendingInteraction, error)
	Delete(ctx context.Context, userID int64) error
}

// RefreshQueue — очередь задач массового обновления имён.
type RefreshQueue interface {
	Enqueue(ctx context.Context, job RefreshJob) error
	// Pop блокируется до появления задачи или отмены контекста.
	Pop(ctx context.Context) (RefreshJob, error)
}
