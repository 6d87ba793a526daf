package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
	"tg-community-bot/internal/usecase/bans"
)

const (
	banUsageText   = `In order to ban a user you must send: "/ban username:ban_reason"`
	unbanUsageText = `In order to unban a user you must send: "/unban username"`

	consumerNotFoundText = `The user was not found, you can try to update the database, but it may take time. Reply "Yes" to this message to begin the process.`
	notSubscribedText    = "This user is not subscribed to the channel."
	notBannedText        = "The user is not banned from your channel"
)

func (d *Dispatcher) handleChannelPost(ctx context.Context, post *models.Message) error {
	channelID, err := d.bindings.Channel()
	if err != nil {
		return fmt.Errorf("чтение привязки канала: %w", err)
	}
	if channelID != 0 && channelID != post.Chat.ID {
		metrics.IncDropped(classChannelPost.String())
		return nil
	}

	groupID, err := d.bindings.Group()
	if err != nil {
		return fmt.Errorf("чтение привязки группы: %w", err)
	}

	switch post.Text {
	case "/set_channel":
		metrics.IncCommand("/set_channel")
		if err := d.bindings.SetChannel(post.Chat.ID); err != nil {
			return fmt.Errorf("привязка канала: %w", err)
		}
		return d.send(ctx, domain.OutgoingMessage{ChatID: groupID, Text: "Channel was set."})
	case "/unset_channel":
		metrics.IncCommand("/unset_channel")
		if err := d.bindings.UnsetChannel(post.Chat.ID); err != nil {
			return fmt.Errorf("отвязка канала: %w", err)
		}
		return d.send(ctx, domain.OutgoingMessage{ChatID: groupID, Text: "Channel was unset."})
	default:
		d.log.Debug().Int64("chat_id", post.Chat.ID).Msg("пост канала без команды")
		return nil
	}
}

// handleMembership записывает вступление в привязанный канал. Выходы
// и блокировки журнал подписок не пополняют.
func (d *Dispatcher) handleMembership(ctx context.Context, member *models.ChatMemberUpdated) error {
	channelID, err := d.bindings.Channel()
	if err != nil {
		return fmt.Errorf("чтение привязки канала: %w", err)
	}
	if channelID == 0 || member.Chat.ID != channelID {
		metrics.IncDropped(classMembership.String())
		return nil
	}
	if !isEntry(member.NewChatMember) {
		return nil
	}

	event := domain.SubscriptionEvent{
		ID:        uuid.New(),
		ChannelID: channelID,
		EntryDate: time.Now().UTC(),
	}
	if err := d.subs.CreateSubscription(ctx, event); err != nil {
		return fmt.Errorf("запись подписки: %w", err)
	}
	return nil
}

func isEntry(member models.ChatMember) bool {
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) banCommand(ctx context.Context, msg *models.Message) error {
	channelID, err := d.bindings.Channel()
	if err != nil {
		return fmt.Errorf("чтение привязки канала: %w", err)
	}

	_, args, ok := strings.Cut(msg.Text, " ")
	if !ok {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: banUsageText})
	}
	name, reason, ok := strings.Cut(args, ":")
	if !ok {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: banUsageText})
	}

	consumer, err := d.bans.Ban(ctx, channelID, name, reason)
	switch {
	case errors.Is(err, bans.ErrConsumerNotFound):
		return d.promptRefresh(ctx, msg)
	case errors.Is(err, bans.ErrNotSubscribed):
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: notSubscribedText})
	case err != nil:
		return err
	}
	return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fmt.Sprintf("User %s was banned.", consumer.Name)})
}

func (d *Dispatcher) unbanCommand(ctx context.Context, msg *models.Message) error {
	channelID, err := d.bindings.Channel()
	if err != nil {
		return fmt.Errorf("чтение привязки канала: %w", err)
	}

	_, name, ok := strings.Cut(msg.Text, " ")
	if !ok {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: unbanUsageText})
	}

	consumer, err := d.bans.Unban(ctx, channelID, name)
	switch {
	case errors.Is(err, bans.ErrConsumerNotFound):
		return d.promptRefresh(ctx, msg)
	case errors.Is(err, bans.ErrNotBanned):
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: notBannedText})
	case err != nil:
		return err
	}
	return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fmt.Sprintf("User %s was unbanned.", consumer.Name)})
}

// promptRefresh предлагает обновить базу имён и запоминает ожидание
// подтверждения.
func (d *Dispatcher) promptRefresh(ctx context.Context, msg *models.Message) error {
	promptID, err := d.messenger.SendMessage(ctx, domain.OutgoingMessage{
		ChatID: msg.Chat.ID,
		Text:   consumerNotFoundText,
	})
	if err != nil {
		return fmt.Errorf("отправка промпта: %w", err)
	}
	interaction := domain.PendingInteraction{Kind: domain.PendingRefreshConfirm, PromptID: promptID}
	if err := d.pending.Put(ctx, msg.From.ID, interaction); err != nil {
		return fmt.Errorf("сохранение ожидания: %w", err)
	}
	return nil
}

func (d *Dispatcher) channelMembers(ctx context.Context, msg *models.Message) error {
	channelID, err := d.bindings.Channel()
	if err != nil {
		return fmt.Errorf("чтение привязки канала: %w", err)
	}
	count, err := d.messenger.ChatMemberCount(ctx, channelID)
	if err != nil {
		return fmt.Errorf("подсчёт участников: %w", err)
	}
	return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fmt.Sprintf("Channel members: %d", count)})
}
