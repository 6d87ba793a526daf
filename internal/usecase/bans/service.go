package bans

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tg-community-bot/internal/domain"
)

var (
	ErrConsumerNotFound = errors.New("пользователь не найден")
	ErrNotSubscribed    = errors.New("пользователь не подписан на канал")
	ErrNotBanned        = errors.New("пользователь не забанен")
)

// Service блокирует и разблокирует подписчиков канала.
// Поиск идёт по сохранённому имени с учётом регистра: имя могло
// устареть, на этот случай есть массовое обновление базы.
type Service struct {
	consumers domain.ConsumerRepo
	bans      domain.BanRepo
	moderator domain.Moderator
}

// NewService создаёт новый сервис банов.
func NewService(consumers domain.ConsumerRepo, bans domain.BanRepo, moderator domain.Moderator) *Service {
	return &Service{consumers: consumers, bans: bans, moderator: moderator}
}

// Ban блокирует пользователя в канале и сохраняет запись о бане.
// Повторный бан той же пары заменяет причину.
func (s *Service) Ban(ctx context.Context, channelID int64, name, reason string) (domain.Consumer, error) {
	consumer, err := s.consumers.GetByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Consumer{}, ErrConsumerNotFound
	}
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("поиск пользователя: %w", err)
	}

	subscribed, err := s.moderator.IsChatMember(ctx, channelID, consumer.ID)
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("проверка подписки: %w", err)
	}
	if !subscribed {
		return domain.Consumer{}, ErrNotSubscribed
	}

	if err := s.moderator.Ban(ctx, channelID, consumer.ID); err != nil {
		return domain.Consumer{}, fmt.Errorf("бан в канале: %w", err)
	}
	record := domain.BanRecord{
		ID:         uuid.New(),
		ConsumerID: consumer.ID,
		Reason:     reason,
		ChatID:     channelID,
	}
	if err := s.bans.UpsertBan(ctx, record); err != nil {
		return domain.Consumer{}, fmt.Errorf("сохранение бана: %w", err)
	}
	return consumer, nil
}

// Unban снимает блокировку и удаляет запись о бане.
func (s *Service) Unban(ctx context.Context, channelID int64, name string) (domain.Consumer, error) {
	consumer, err := s.consumers.GetByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Consumer{}, ErrConsumerNotFound
	}
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("поиск пользователя: %w", err)
	}

	if _, err := s.bans.FindBan(ctx, consumer.ID, channelID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Consumer{}, ErrNotBanned
		}
		return domain.Consumer{}, fmt.Errorf("поиск бана: %w", err)
	}

	if err := s.moderator.Unban(ctx, channelID, consumer.ID); err != nil {
		return domain.Consumer{}, fmt.Errorf("разбан в канале: %w", err)
	}
	if err := s.bans.DeleteBan(ctx, consumer.ID, channelID); err != nil {
		return domain.Consumer{}, fmt.Errorf("удаление бана: %w", err)
	}
	return consumer, nil
}
