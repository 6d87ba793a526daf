package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
)

const (
	groupStartText = `Where would u like to start? Use "/set_group" to set the main group and "/help" to see commands`
	groupHelpText  = "/set_group - command to set the main group, \n" +
		"/unset_group - command to unset the main group, \n" +
		"/send - command to send a response to the user (use in topics), \n" +
		"/close_topic - command to close a topic, use inside a topic, \n" +
		"/topic_statistics - command to get statistics on topics, \n" +
		"/topic_statistics_date \"dd-MM-yyyy\" - command to get statistics on topics by date, \\n" +
		"/ban username:reason - command to ban a user in a channel, \n" +
		"/unban username - command to unban a user in a channel"

	sendPromptText = "To send a response, reply to this message. (You can attach a document, you should do the same with photos)"
	lostChatText   = "The chat may have been lost. (Contact the person directly)"

	groupFallbackText = "I didn't understand u."
)

func (d *Dispatcher) handleGroup(ctx context.Context, msg *models.Message, consumer domain.Consumer) error {
	groupID, err := d.bindings.Group()
	if err != nil {
		return fmt.Errorf("чтение привязки группы: %w", err)
	}
	// Сообщения чужих групп молча игнорируются. Без привязки
	// принимается всё: иначе /set_group было бы не выполнить.
	if groupID != 0 && groupID != msg.Chat.ID {
		metrics.IncDropped(classGroupMessage.String())
		return nil
	}

	switch msg.Text {
	case "/start":
		metrics.IncCommand("/start")
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: groupStartText, Markup: domain.MarkupGroupMenu})
	case "/help":
		metrics.IncCommand("/help")
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: groupHelpText})
	case "/set_group":
		metrics.IncCommand("/set_group")
		if err := d.bindings.SetGroup(msg.Chat.ID); err != nil {
			return fmt.Errorf("привязка группы: %w", err)
		}
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: "Group was set."})
	case "/unset_group":
		metrics.IncCommand("/unset_group")
		if err := d.bindings.UnsetGroup(msg.Chat.ID); err != nil {
			return fmt.Errorf("отвязка группы: %w", err)
		}
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: "Group was unset."})
	case "/close_topic":
		metrics.IncCommand("/close_topic")
		return d.topics.Close(ctx, groupID, int64(msg.MessageThreadID))
	case "/topic_statistics":
		metrics.IncCommand("/topic_statistics")
		return d.topicStatistics(ctx, groupID)
	case "/channel_members":
		metrics.IncCommand("/channel_members")
		return d.channelMembers(ctx, msg)
	case "/channel_subscribes":
		metrics.IncCommand("/channel_subscribes")
		return d.channelSubscribes(ctx, msg)
	}

	if msg.Text == "/send" && msg.IsTopicMessage {
		metrics.IncCommand("/send")
		return d.promptAdminReply(ctx, msg)
	}

	switch {
	case strings.HasPrefix(msg.Text, "/ban"):
		metrics.IncCommand("/ban")
		return d.banCommand(ctx, msg)
	case strings.HasPrefix(msg.Text, "/unban"):
		metrics.IncCommand("/unban")
		return d.unbanCommand(ctx, msg)
	case strings.HasPrefix(msg.Text, "/topic_statistics_date "):
		metrics.IncCommand("/topic_statistics_date")
		return d.topicStatisticsByDate(ctx, groupID, msg.Text)
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.Text != "" {
		return d.groupReply(ctx, msg)
	}
	if msg.From != nil && !msg.From.IsBot {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fallbackText})
	}
	return nil
}

// promptAdminReply отправляет в тред промпт для ответа администратора
// и запоминает, к какой теме он относится.
func (d *Dispatcher) promptAdminReply(ctx context.Context, msg *models.Message) error {
	promptID, err := d.messenger.SendMessage(ctx, domain.OutgoingMessage{
		ChatID:   msg.Chat.ID,
		ThreadID: msg.MessageThreadID,
		Text:     sendPromptText,
		Markup:   domain.MarkupForceReply,
	})
	if err != nil {
		return fmt.Errorf("отправка промпта: %w", err)
	}
	interaction := domain.PendingInteraction{
		Kind:     domain.PendingAdminReply,
		PromptID: promptID,
		TopicID:  int64(msg.MessageThreadID),
	}
	if err := d.pending.Put(ctx, msg.From.ID, interaction); err != nil {
		return fmt.Errorf("сохранение ожидания: %w", err)
	}
	return nil
}

func (d *Dispatcher) groupReply(ctx context.Context, msg *models.Message) error {
	if !d.isBotReply(msg) {
		return nil
	}
	interaction, err := d.pending.Get(ctx, msg.From.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: groupFallbackText})
	}
	if err != nil {
		return fmt.Errorf("чтение ожидания: %w", err)
	}
	if msg.ReplyToMessage.ID != interaction.PromptID {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: groupFallbackText})
	}

	switch interaction.Kind {
	case domain.PendingAdminReply:
		if err := d.sendAnswer(ctx, msg, interaction.TopicID); err != nil {
			return err
		}
	case domain.PendingRefreshConfirm:
		if err := d.enqueueRefresh(ctx, msg); err != nil {
			return err
		}
	default:
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: groupFallbackText})
	}

	if err := d.pending.Delete(ctx, msg.From.ID); err != nil {
		d.log.Warn().Err(err).Int64("consumer_id", msg.From.ID).Msg("не удалось снять ожидание")
	}
	return nil
}

// sendAnswer доставляет ответ администратора владельцу темы личным
// сообщением, цитируя предпоследнюю активность треда — сам вопрос.
func (d *Dispatcher) sendAnswer(ctx context.Context, msg *models.Message, threadID int64) error {
	groupID, err := d.bindings.Group()
	if err != nil {
		return fmt.Errorf("чтение привязки группы: %w", err)
	}

	topic, err := d.topicRepo.FindOpenByThread(ctx, groupID, threadID)
	if errors.Is(err, domain.ErrNotFound) {
		return d.send(ctx, domain.OutgoingMessage{ChatID: groupID, ThreadID: int(threadID), Text: lostChatText})
	}
	if err != nil {
		return fmt.Errorf("поиск темы: %w", err)
	}

	activities, err := d.activityRepo.ListByTopic(ctx, topic.ID)
	if err != nil {
		return fmt.Errorf("выборка активностей: %w", err)
	}
	if len(activities) < 2 {
		return fmt.Errorf("в теме %d меньше двух активностей", topic.ID)
	}
	quoted := activities[len(activities)-2].Text

	var subject string
	switch topic.Kind {
	case domain.TopicAdvt:
		subject = "advt offer"
	case domain.TopicNews:
		subject = "news offer"
	default:
		subject = "ask"
	}

	var firstName string
	if msg.From != nil {
		firstName = msg.From.FirstName
	}
	text := fmt.Sprintf("Administrator %s answered: %s to ur %s: %s", firstName, msg.Text, subject, quoted)
	if err := d.send(ctx, domain.OutgoingMessage{ChatID: topic.OwnerID, Text: text}); err != nil {
		return fmt.Errorf("доставка ответа: %w", err)
	}
	if msg.Document != nil {
		if err := d.messenger.SendDocument(ctx, topic.OwnerID, 0, msg.Document.FileID, msg.Document.FileName); err != nil {
			return fmt.Errorf("пересылка документа: %w", err)
		}
	}
	return nil
}

// enqueueRefresh ставит задачу массового обновления имён. Уведомления
// о старте и завершении отправляет воркер.
func (d *Dispatcher) enqueueRefresh(ctx context.Context, msg *models.Message) error {
	job := domain.RefreshJob{
		ChatID:      msg.Chat.ID,
		RequestedBy: msg.From.ID,
		RequestedAt: time.Now().UTC(),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка задачи обновления: %w", err)
	}
	metrics.RefreshJobsTotal.Inc()
	return nil
}
