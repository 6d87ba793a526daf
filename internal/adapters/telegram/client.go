// Package telegram — адаптер Bot API поверх go-telegram/bot.
package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
)

// Обновления, которые бот просит у платформы при регистрации вебхука.
var allowedUpdates = []string{"message", "channel_post", "chat_member"}

// Client реализует доменные интерфейсы Messenger, ForumManager,
// Moderator и NameResolver.
type Client struct {
	bot *bot.Bot
}

var (
	_ domain.Messenger    = (*Client)(nil)
	_ domain.ForumManager = (*Client)(nil)
	_ domain.Moderator    = (*Client)(nil)
	_ domain.NameResolver = (*Client)(nil)
)

// NewClient создаёт клиента без обращения к сети.
func NewClient(token string) (*Client, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("создание клиента telegram: %w", err)
	}
	return &Client{bot: b}, nil
}

// RegisterWebhook регистрирует адрес вебхука у платформы.
func (c *Client) RegisterWebhook(ctx context.Context, url string) error {
	start := time.Now()
	_, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		AllowedUpdates: allowedUpdates,
	})
	metrics.ObserveNetworkRequest("telegram", "set_webhook", "webhook", start, err)
	if err != nil {
		return fmt.Errorf("регистрация вебхука: %w", err)
	}
	return nil
}

// UnregisterWebhook снимает вебхук, оставляя накопленные обновления.
func (c *Client) UnregisterWebhook(ctx context.Context) error {
	start := time.Now()
	_, err := c.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{})
	metrics.ObserveNetworkRequest("telegram", "delete_webhook", "webhook", start, err)
	if err != nil {
		return fmt.Errorf("снятие вебхука: %w", err)
	}
	return nil
}

// BotID возвращает идентификатор самого бота.
func (c *Client) BotID(ctx context.Context) (int64, error) {
	start := time.Now()
	me, err := c.bot.GetMe(ctx)
	metrics.ObserveNetworkRequest("telegram", "get_me", "me", start, err)
	if err != nil {
		return 0, fmt.Errorf("получение профиля бота: %w", err)
	}
	return me.ID, nil
}

// SendMessage отправляет текст и возвращает идентификатор сообщения.
func (c *Client) SendMessage(ctx context.Context, msg domain.OutgoingMessage) (int, error) {
	start := time.Now()
	sent, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.ChatID,
		MessageThreadID: msg.ThreadID,
		Text:            msg.Text,
		ReplyMarkup:     replyMarkup(msg.Markup),
	})
	metrics.ObserveNetworkRequest("telegram", "send_message", "message", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return 0, fmt.Errorf("отправка сообщения: %w", err)
	}
	return sent.ID, nil
}

// SendDocument пересылает документ по file id.
func (c *Client) SendDocument(ctx context.Context, chatID int64, threadID int, fileID, caption string) error {
	start := time.Now()
	_, err := c.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:          chatID,
		MessageThreadID: threadID,
		Document:        &models.InputFileString{Data: fileID},
		Caption:         caption,
	})
	metrics.ObserveNetworkRequest("telegram", "send_document", "document", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return fmt.Errorf("отправка документа: %w", err)
	}
	return nil
}

// ChatMemberCount возвращает число участников чата.
func (c *Client) ChatMemberCount(ctx context.Context, chatID int64) (int, error) {
	start := time.Now()
	count, err := c.bot.GetChatMemberCount(ctx, &bot.GetChatMemberCountParams{ChatID: chatID})
	metrics.ObserveNetworkRequest("telegram", "get_chat_member_count", "chat", start, err)
	if err != nil {
		return 0, fmt.Errorf("подсчёт участников: %w", err)
	}
	return count, nil
}

// CreateTopic создаёт форумную тему и возвращает идентификатор треда.
func (c *Client) CreateTopic(ctx context.Context, groupID int64, name string) (int64, error) {
	start := time.Now()
	topic, err := c.bot.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: groupID,
		Name:   name,
	})
	metrics.ObserveNetworkRequest("telegram", "create_forum_topic", "topic", start, err)
	if err != nil {
		return 0, fmt.Errorf("создание темы: %w", err)
	}
	return int64(topic.MessageThreadID), nil
}

// DeleteTopic удаляет форумную тему вместе с сообщениями.
func (c *Client) DeleteTopic(ctx context.Context, groupID, threadID int64) error {
	start := time.Now()
	_, err := c.bot.DeleteForumTopic(ctx, &bot.DeleteForumTopicParams{
		ChatID:          groupID,
		MessageThreadID: int(threadID),
	})
	metrics.ObserveNetworkRequest("telegram", "delete_forum_topic", "topic", start, err)
	if err != nil {
		return fmt.Errorf("удаление темы: %w", err)
	}
	return nil
}

// IsChatMember сообщает, состоит ли пользователь в чате.
func (c *Client) IsChatMember(ctx context.Context, chatID, userID int64) (bool, error) {
	start := time.Now()
	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	metrics.ObserveNetworkRequest("telegram", "get_chat_member", "chat", start, err)
	if err != nil {
		return false, fmt.Errorf("проверка членства: %w", err)
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	case models.ChatMemberTypeRestricted:
		return member.Restricted.IsMember, nil
	default:
		return false, nil
	}
}

// Ban блокирует пользователя в чате.
func (c *Client) Ban(ctx context.Context, chatID, userID int64) error {
	start := time.Now()
	_, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	metrics.ObserveNetworkRequest("telegram", "ban_chat_member", "chat", start, err)
	if err != nil {
		return fmt.Errorf("бан пользователя: %w", err)
	}
	return nil
}

// Unban снимает блокировку пользователя.
func (c *Client) Unban(ctx context.Context, chatID, userID int64) error {
	start := time.Now()
	_, err := c.bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       chatID,
		UserID:       userID,
		OnlyIfBanned: true,
	})
	metrics.ObserveNetworkRequest("telegram", "unban_chat_member", "chat", start, err)
	if err != nil {
		return fmt.Errorf("разбан пользователя: %w", err)
	}
	return nil
}

// Username возвращает актуальное имя пользователя по данным платформы.
func (c *Client) Username(ctx context.Context, userID int64) (string, error) {
	start := time.Now()
	chat, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: userID})
	metrics.ObserveNetworkRequest("telegram", "get_chat", "chat", start, err)
	if err != nil {
		return "", fmt.Errorf("получение имени: %w", err)
	}
	if chat.Username != "" {
		return chat.Username, nil
	}
	return chat.FirstName, nil
}

func replyMarkup(markup domain.Markup) models.ReplyMarkup {
	switch markup {
	case domain.MarkupForceReply:
		return &models.ForceReply{ForceReply: true, Selective: true}
	case domain.MarkupPrivateMenu:
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: "/help"}},
				{{Text: "/ask"}, {Text: "/advt"}, {Text: "/news"}},
			},
			ResizeKeyboard: true,
		}
	case domain.MarkupGroupMenu:
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: "/set_group"}, {Text: "/unset_group"}},
			},
			ResizeKeyboard: true,
		}
	default:
		return nil
	}
}
