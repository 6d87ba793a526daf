package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
)

const (
	privateStartText = "Where would u like to start?"
	privateHelpText  = "/ask - command to send a question to the administration, \n" +
		"/advt - command to send an advertising proposal, \n" +
		"/news - command to send a news."

	askPromptText  = "What question do you want to ask? (Write a reply to this message. You can attach a document, you should do the same with photos)"
	advtPromptText = "What would you like to suggest? (Write a reply to this message. You can attach a document, you should do the same with photos)"
	newsPromptText = "What news do you want to offer? (Write a reply to this message. You can attach a document, you should do the same with photos)"

	noGroupText      = "It's not possible to ask a question at this time. Try later."
	replyCommandText = `Reply to messages cannot be a message starting with "/"`
)

func (d *Dispatcher) handlePrivate(ctx context.Context, msg *models.Message, consumer domain.Consumer) error {
	switch {
	case msg.Text == "/start":
		metrics.IncCommand("/start")
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: privateStartText, Markup: domain.MarkupPrivateMenu})
	case msg.Text == "/help":
		metrics.IncCommand("/help")
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: privateHelpText})
	case msg.Text == "/ask":
		metrics.IncCommand("/ask")
		return d.promptTopicText(ctx, msg, domain.PendingAskText, askPromptText)
	case msg.Text == "/advt":
		metrics.IncCommand("/advt")
		return d.promptTopicText(ctx, msg, domain.PendingAdvtText, advtPromptText)
	case msg.Text == "/news":
		metrics.IncCommand("/news")
		return d.promptTopicText(ctx, msg, domain.PendingNewsText, newsPromptText)
	case msg.ReplyToMessage != nil && msg.ReplyToMessage.Text != "":
		return d.privateReply(ctx, msg, consumer)
	default:
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fallbackText})
	}
}

// promptTopicText отправляет промпт с принудительным ответом и
// запоминает ожидание. Без привязанной группы обращения не принимаются.
func (d *Dispatcher) promptTopicText(ctx context.Context, msg *models.Message, kind domain.PendingKind, prompt string) error {
	groupID, err := d.bindings.Group()
	if err != nil {
		return fmt.Errorf("чтение привязки группы: %w", err)
	}
	if groupID == 0 {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: noGroupText})
	}

	promptID, err := d.messenger.SendMessage(ctx, domain.OutgoingMessage{
		ChatID: msg.Chat.ID,
		Text:   prompt,
		Markup: domain.MarkupForceReply,
	})
	if err != nil {
		return fmt.Errorf("отправка промпта: %w", err)
	}
	if err := d.pending.Put(ctx, msg.From.ID, domain.PendingInteraction{Kind: kind, PromptID: promptID}); err != nil {
		return fmt.Errorf("сохранение ожидания: %w", err)
	}
	return nil
}

// privateReply сопоставляет ответ пользователя с сохранённым
// ожиданием. Истёкшее или чужое ожидание даёт стандартный фолбэк.
func (d *Dispatcher) privateReply(ctx context.Context, msg *models.Message, consumer domain.Consumer) error {
	if !d.isBotReply(msg) {
		return nil
	}
	interaction, err := d.pending.Get(ctx, msg.From.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fallbackText})
	}
	if err != nil {
		return fmt.Errorf("чтение ожидания: %w", err)
	}
	if msg.ReplyToMessage.ID != interaction.PromptID {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fallbackText})
	}

	// Ожидание не снимается: пользователь может ответить ещё раз.
	if strings.HasPrefix(msg.Text, "/") {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: replyCommandText})
	}

	var kind domain.TopicKind
	switch interaction.Kind {
	case domain.PendingAskText:
		kind = domain.TopicAsk
	case domain.PendingAdvtText:
		kind = domain.TopicAdvt
	case domain.PendingNewsText:
		kind = domain.TopicNews
	default:
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: fallbackText})
	}

	if err := d.relayToTopic(ctx, msg, kind); err != nil {
		return err
	}
	if err := d.pending.Delete(ctx, msg.From.ID); err != nil {
		d.log.Warn().Err(err).Int64("consumer_id", msg.From.ID).Msg("не удалось снять ожидание")
	}
	return nil
}

// relayToTopic находит либо создаёт тему обращения, подтверждает приём
// пользователю и публикует текст в тред группы.
func (d *Dispatcher) relayToTopic(ctx context.Context, msg *models.Message, kind domain.TopicKind) error {
	groupID, err := d.bindings.Group()
	if err != nil {
		return fmt.Errorf("чтение привязки группы: %w", err)
	}
	if groupID == 0 {
		return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: noGroupText})
	}

	topic, err := d.topics.FindOrCreate(ctx, groupID, msg.Chat.ID, kind, msg.Chat.FirstName)
	if err != nil {
		return err
	}

	var ack, relay string
	switch kind {
	case domain.TopicAsk:
		ack = fmt.Sprintf("U asked: %s. We'll answered soon.", msg.Text)
		relay = fmt.Sprintf("@%s asked: %s", msg.Chat.Username, msg.Text)
	case domain.TopicAdvt:
		ack = fmt.Sprintf("U suggest: %s. We'll answered soon.", msg.Text)
		relay = fmt.Sprintf("@%s suggested: %s", msg.Chat.Username, msg.Text)
	case domain.TopicNews:
		ack = fmt.Sprintf("U offer: %s. We'll answered soon.", msg.Text)
		relay = fmt.Sprintf("@%s offered: %s", msg.Chat.Username, msg.Text)
	}

	if err := d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: ack}); err != nil {
		return fmt.Errorf("подтверждение пользователю: %w", err)
	}
	if err := d.send(ctx, domain.OutgoingMessage{ChatID: groupID, ThreadID: int(topic.ID), Text: relay}); err != nil {
		return fmt.Errorf("публикация в тред: %w", err)
	}
	if msg.Document != nil {
		if err := d.messenger.SendDocument(ctx, groupID, int(topic.ID), msg.Document.FileID, msg.Document.FileName); err != nil {
			return fmt.Errorf("пересылка документа: %w", err)
		}
	}
	return nil
}
