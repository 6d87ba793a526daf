package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-community-bot/internal/domain"
)

// Service отслеживает пользователей и обновляет их имена.
type Service struct {
	repo     domain.ConsumerRepo
	resolver domain.NameResolver
	pace     time.Duration
	log      zerolog.Logger
}

// NewService создаёт новый сервис пользователей. pace — пауза между
// обращениями к платформе при массовом обновлении имён.
func NewService(repo domain.ConsumerRepo, resolver domain.NameResolver, pace time.Duration, log zerolog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, pace: pace, log: log}
}

// Track вставляет пользователя, если его ещё нет. Имя существующей
// записи не обновляется: оно меняется только массовым обновлением.
func (s *Service) Track(ctx context.Context, consumer domain.Consumer) (domain.Consumer, error) {
	return s.repo.GetOrCreate(ctx, consumer)
}

// RefreshNames заново получает имя каждого пользователя у платформы и
// сохраняет изменившиеся. Между запросами выдерживается пауза, отмена
// контекста прерывает обход. Возвращает число обновлённых записей.
func (s *Service) RefreshNames(ctx context.Context) (int, error) {
	all, err := s.repo.ListConsumers(ctx)
	if err != nil {
		return 0, fmt.Errorf("выборка пользователей: %w", err)
	}

	updated := 0
	for i, consumer := range all {
		if i > 0 {
			if err := s.wait(ctx); err != nil {
				return updated, err
			}
		}
		name, err := s.resolver.Username(ctx, consumer.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("consumer_id", consumer.ID).Msg("не удалось получить имя")
			continue
		}
		if name == "" || name == consumer.Name {
			continue
		}
		if err := s.repo.UpdateName(ctx, consumer.ID, name); err != nil {
			return updated, fmt.Errorf("обновление имени: %w", err)
		}
		updated++
	}
	return updated, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.pace <= 0 {
		return nil
	}
	timer := time.NewTimer(s.pace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
