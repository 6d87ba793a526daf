package topics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-community-bot/internal/domain"
)

// Service управляет форумными темами обращений.
type Service struct {
	repo  domain.TopicRepo
	forum domain.ForumManager
}

// NewService создаёт новый сервис тем.
func NewService(repo domain.TopicRepo, forum domain.ForumManager) *Service {
	return &Service{repo: repo, forum: forum}
}

// TopicName строит имя темы из имени владельца и вида обращения.
func TopicName(ownerFirstName string, kind domain.TopicKind) string {
	switch kind {
	case domain.TopicAdvt:
		return ownerFirstName + " - Advt"
	case domain.TopicNews:
		return ownerFirstName + " - News"
	default:
		return ownerFirstName + " - Ask"
	}
}

// FindOrCreate возвращает открытую тему владельца нужного вида либо
// создаёт новую. Сначала создаётся форумный тред, его идентификатор
// становится ключом записи; повторной попытки при сбое нет.
func (s *Service) FindOrCreate(ctx context.Context, groupID, ownerID int64, kind domain.TopicKind, ownerFirstName string) (domain.Topic, error) {
	topic, err := s.repo.FindOpen(ctx, groupID, ownerID, kind)
	if err == nil {
		return topic, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Topic{}, fmt.Errorf("поиск темы: %w", err)
	}

	name := TopicName(ownerFirstName, kind)
	threadID, err := s.forum.CreateTopic(ctx, groupID, name)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("создание треда: %w", err)
	}
	topic = domain.Topic{
		ID:        threadID,
		GroupID:   groupID,
		Name:      name,
		OwnerID:   ownerID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateTopic(ctx, topic); err != nil {
		return domain.Topic{}, fmt.Errorf("сохранение темы: %w", err)
	}
	return topic, nil
}

// Close удаляет форумный тред и помечает тему закрытой.
func (s *Service) Close(ctx context.Context, groupID, threadID int64) error {
	topic, err := s.repo.FindOpenByThread(ctx, groupID, threadID)
	if err != nil {
		return fmt.Errorf("поиск открытой темы: %w", err)
	}
	if err := s.forum.DeleteTopic(ctx, topic.GroupID, topic.ID); err != nil {
		return fmt.Errorf("удаление треда: %w", err)
	}
	if err := s.repo.CloseTopic(ctx, topic.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("закрытие темы: %w", err)
	}
	return nil
}
