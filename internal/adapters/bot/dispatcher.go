// Package bot разбирает входящие апдейты и выполняет команды.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
	"tg-community-bot/internal/usecase/bans"
	"tg-community-bot/internal/usecase/consumers"
	"tg-community-bot/internal/usecase/stats"
	"tg-community-bot/internal/usecase/topics"
)

const fallbackText = "I didn't understand u"

// ErrNoActor означает поддерживаемый апдейт без определимого пользователя.
var ErrNoActor = errors.New("апдейт без пользователя")

// updateClass — вид апдейта. Классификация выполняется ровно один раз,
// дальше апдейт идёт ровно в один обработчик.
type updateClass int

const (
	classUnknown updateClass = iota
	classPrivateMessage
	classGroupMessage
	classChannelPost
	classMembership
)

func (c updateClass) String() string {
	switch c {
	case classPrivateMessage:
		return "private_message"
	case classGroupMessage:
		return "group_message"
	case classChannelPost:
		return "channel_post"
	case classMembership:
		return "membership"
	default:
		return "unknown"
	}
}

// Dispatcher связывает апдейты платформы с прикладными сервисами.
type Dispatcher struct {
	log   zerolog.Logger
	botID int64

	consumers *consumers.Service
	topics    *topics.Service
	bans      *bans.Service
	stats     *stats.Service

	topicRepo    domain.TopicRepo
	activityRepo domain.ActivityRepo
	subs         domain.SubscriptionRepo

	messenger domain.Messenger
	bindings  domain.Bindings
	pending   domain.PendingStore
	queue     domain.RefreshQueue
}

// Deps — зависимости диспетчера.
type Deps struct {
	Log zerolog.Logger
	// BotID — идентификатор аккаунта бота. Ответы на чужие
	// сообщения по нему отсеиваются.
	BotID int64

	Consumers *consumers.Service
	Topics    *topics.Service
	Bans      *bans.Service
	Stats     *stats.Service

	TopicRepo    domain.TopicRepo
	ActivityRepo domain.ActivityRepo
	Subscribes   domain.SubscriptionRepo

	Messenger domain.Messenger
	Bindings  domain.Bindings
	Pending   domain.PendingStore
	Queue     domain.RefreshQueue
}

// NewDispatcher создаёт диспетчер апдейтов.
func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{
		log:          deps.Log,
		botID:        deps.BotID,
		consumers:    deps.Consumers,
		topics:       deps.Topics,
		bans:         deps.Bans,
		stats:        deps.Stats,
		topicRepo:    deps.TopicRepo,
		activityRepo: deps.ActivityRepo,
		subs:         deps.Subscribes,
		messenger:    deps.Messenger,
		bindings:     deps.Bindings,
		pending:      deps.Pending,
		queue:        deps.Queue,
	}
}

// HandleUpdate обрабатывает один апдейт. Ошибки логируются и
// гасятся здесь: вебхук всегда отвечает платформе успехом.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update *models.Update) {
	class := classify(update)
	metrics.IncUpdate(class.String())

	if class == classUnknown {
		d.log.Debug().Int64("update_id", update.ID).Msg("апдейт не поддерживается")
		return
	}

	actor := actorOf(update, class)
	if actor == nil {
		d.log.Error().Err(ErrNoActor).Int64("update_id", update.ID).Msg("апдейт отброшен")
		return
	}

	consumer, err := d.consumers.Track(ctx, domain.Consumer{
		ID:        actor.ID,
		Name:      actor.Username,
		IsBot:     actor.IsBot,
		EntryDate: time.Now().UTC(),
	})
	if err != nil {
		d.log.Error().Err(err).Int64("consumer_id", actor.ID).Msg("не удалось сохранить пользователя")
		return
	}

	if err := d.recordActivity(ctx, update, class, consumer); err != nil {
		d.log.Error().Err(err).Int64("update_id", update.ID).Msg("не удалось записать активность")
		return
	}

	switch class {
	case classPrivateMessage:
		err = d.handlePrivate(ctx, update.Message, consumer)
	case classGroupMessage:
		err = d.handleGroup(ctx, update.Message, consumer)
	case classChannelPost:
		err = d.handleChannelPost(ctx, update.ChannelPost)
	case classMembership:
		err = d.handleMembership(ctx, update.ChatMember)
	}
	if err != nil {
		d.log.Error().Err(err).Int64("update_id", update.ID).Str("class", class.String()).Msg("ошибка обработки апдейта")
	}
}

func classify(update *models.Update) updateClass {
	switch {
	case update.Message != nil && update.Message.Chat.Type == models.ChatTypePrivate:
		return classPrivateMessage
	case update.Message != nil && (update.Message.Chat.Type == models.ChatTypeGroup || update.Message.Chat.Type == models.ChatTypeSupergroup):
		return classGroupMessage
	case update.ChannelPost != nil:
		return classChannelPost
	case update.ChatMember != nil:
		return classMembership
	default:
		return classUnknown
	}
}

func actorOf(update *models.Update, class updateClass) *models.User {
	switch class {
	case classPrivateMessage, classGroupMessage:
		return update.Message.From
	case classChannelPost:
		return update.ChannelPost.From
	case classMembership:
		return chatMemberUser(update.ChatMember.NewChatMember)
	default:
		return nil
	}
}

func chatMemberUser(member models.ChatMember) *models.User {
	switch member.Type {
	case models.ChatMemberTypeOwner:
		return member.Owner.User
	case models.ChatMemberTypeAdministrator:
		// У варианта administrator пользователь хранится по значению.
		return &member.Administrator.User
	case models.ChatMemberTypeMember:
		return member.Member.User
	case models.ChatMemberTypeRestricted:
		return member.Restricted.User
	case models.ChatMemberTypeLeft:
		return member.Left.User
	case models.ChatMemberTypeBanned:
		return member.Banned.User
	default:
		return nil
	}
}

// recordActivity пишет журнал для сообщений и постов канала. Смены
// членства журналом активности не отслеживаются.
func (d *Dispatcher) recordActivity(ctx context.Context, update *models.Update, class updateClass, consumer domain.Consumer) error {
	activity := domain.Activity{
		ID:         uuid.New(),
		UpdateID:   update.ID,
		Time:       time.Now().UTC(),
		ConsumerID: consumer.ID,
	}

	switch class {
	case classPrivateMessage, classGroupMessage:
		msg := update.Message
		activity.Kind = domain.UpdateMessage
		activity.ChatKind = string(msg.Chat.Type)
		activity.Text = msg.Text
		if msg.MessageThreadID != 0 {
			topic, err := d.topicRepo.FindByThread(ctx, int64(msg.MessageThreadID))
			switch {
			case err == nil:
				id := topic.ID
				activity.TopicID = &id
			case !errors.Is(err, domain.ErrNotFound):
				return fmt.Errorf("поиск темы треда: %w", err)
			}
		}
	case classChannelPost:
		post := update.ChannelPost
		activity.Kind = domain.UpdateChannelPost
		activity.ChatKind = string(post.Chat.Type)
		activity.Text = post.Text
	default:
		return nil
	}

	if err := d.activityRepo.CreateActivity(ctx, activity); err != nil {
		return fmt.Errorf("запись активности: %w", err)
	}
	return nil
}

// isBotReply сообщает, что сообщение отвечает на промпт самого бота.
// Ответы на сообщения других участников бот не трогает.
func (d *Dispatcher) isBotReply(msg *models.Message) bool {
	return msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == d.botID
}

func (d *Dispatcher) send(ctx context.Context, msg domain.OutgoingMessage) error {
	_, err := d.messenger.SendMessage(ctx, msg)
	return err
}
