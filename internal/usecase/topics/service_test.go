package topics

import (
	"context"
	"testing"
	"time"

	"tg-community-bot/internal/domain"
)

type memTopicRepo struct {
	topics []domain.Topic
}

func (r *memTopicRepo) CreateTopic(ctx context.Context, topic domain.Topic) error {
	r.topics = append(r.topics, topic)
	return nil
}

func (r *memTopicRepo) FindOpen(ctx context.Context, groupID, ownerID int64, kind domain.TopicKind) (domain.Topic, error) {
	for _, t := range r.topics {
		if t.GroupID == groupID && t.OwnerID == ownerID && t.Kind == kind && t.ClosedAt == nil {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (r *memTopicRepo) FindOpenByThread(ctx context.Context, groupID, threadID int64) (domain.Topic, error) {
	for _, t := range r.topics {
		if t.GroupID == groupID && t.ID == threadID && t.ClosedAt == nil {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (r *memTopicRepo) FindByThread(ctx context.Context, threadID int64) (domain.Topic, error) {
	for _, t := range r.topics {
		if t.ID == threadID {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (r *memTopicRepo) CloseTopic(ctx context.Context, threadID int64, at time.Time) error {
	for i := range r.topics {
		if r.topics[i].ID == threadID {
			r.topics[i].ClosedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memTopicRepo) ListOpenStats(ctx context.Context, groupID int64) ([]domain.TopicStat, error) {
	return nil, nil
}

func (r *memTopicRepo) ListClosedStatsSince(ctx context.Context, groupID int64, since time.Time) ([]domain.TopicStat, error) {
	return nil, nil
}

type memForum struct {
	nextThread int64
	created    []string
	deleted    []int64
}

func (f *memForum) CreateTopic(ctx context.Context, groupID int64, name string) (int64, error) {
	f.nextThread++
	f.created = append(f.created, name)
	return f.nextThread, nil
}

func (f *memForum) DeleteTopic(ctx context.Context, groupID, threadID int64) error {
	f.deleted = append(f.deleted, threadID)
	return nil
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	repo := &memTopicRepo{}
	forum := &memForum{}
	svc := NewService(repo, forum)

	first, err := svc.FindOrCreate(context.Background(), 100, 7, domain.TopicAsk, "Ann")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := svc.FindOrCreate(context.Background(), 100, 7, domain.TopicAsk, "Ann")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("ожидали ту же тему, получили %d и %d", first.ID, second.ID)
	}
	if len(forum.created) != 1 {
		t.Fatalf("ожидали один тред, создано %d", len(forum.created))
	}
	if forum.created[0] != "Ann - Ask" {
		t.Fatalf("неожиданное имя темы: %s", forum.created[0])
	}
}

func TestFindOrCreateSeparatesKinds(t *testing.T) {
	repo := &memTopicRepo{}
	forum := &memForum{}
	svc := NewService(repo, forum)

	ask, _ := svc.FindOrCreate(context.Background(), 100, 7, domain.TopicAsk, "Ann")
	news, err := svc.FindOrCreate(context.Background(), 100, 7, domain.TopicNews, "Ann")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if ask.ID == news.ID {
		t.Fatalf("темы разных видов не должны совпадать")
	}
	if news.Name != "Ann - News" {
		t.Fatalf("неожиданное имя темы: %s", news.Name)
	}
}

func TestCloseDeletesThreadAndMarksRow(t *testing.T) {
	repo := &memTopicRepo{}
	forum := &memForum{}
	svc := NewService(repo, forum)

	topic, _ := svc.FindOrCreate(context.Background(), 100, 7, domain.TopicAsk, "Ann")
	if err := svc.Close(context.Background(), 100, topic.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(forum.deleted) != 1 || forum.deleted[0] != topic.ID {
		t.Fatalf("тред не удалён: %v", forum.deleted)
	}
	if repo.topics[0].ClosedAt == nil {
		t.Fatalf("тема не помечена закрытой")
	}

	// Закрытая тема не переиспользуется.
	reopened, err := svc.FindOrCreate(context.Background(), 100, 7, domain.TopicAsk, "Ann")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reopened.ID == topic.ID {
		t.Fatalf("закрытая тема не должна возвращаться")
	}
}

func TestCloseUnknownThread(t *testing.T) {
	svc := NewService(&memTopicRepo{}, &memForum{})
	if err := svc.Close(context.Background(), 100, 555); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного треда")
	}
}
