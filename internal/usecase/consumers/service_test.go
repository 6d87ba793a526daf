package consumers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-community-bot/internal/domain"
)

type memConsumerRepo struct {
	all     []domain.Consumer
	updated map[int64]string
}

func (r *memConsumerRepo) GetOrCreate(ctx context.Context, c domain.Consumer) (domain.Consumer, error) {
	for _, existing := range r.all {
		if existing.ID == c.ID {
			return existing, nil
		}
	}
	r.all = append(r.all, c)
	return c, nil
}

func (r *memConsumerRepo) GetByID(ctx context.Context, id int64) (domain.Consumer, error) {
	return domain.Consumer{}, domain.ErrNotFound
}

func (r *memConsumerRepo) GetByName(ctx context.Context, name string) (domain.Consumer, error) {
	return domain.Consumer{}, domain.ErrNotFound
}

func (r *memConsumerRepo) ListConsumers(ctx context.Context) ([]domain.Consumer, error) {
	return r.all, nil
}

func (r *memConsumerRepo) UpdateName(ctx context.Context, id int64, name string) error {
	if r.updated == nil {
		r.updated = map[int64]string{}
	}
	r.updated[id] = name
	return nil
}

type staticResolver struct {
	names map[int64]string
}

func (s *staticResolver) Username(ctx context.Context, userID int64) (string, error) {
	name, ok := s.names[userID]
	if !ok {
		return "", errors.New("нет такого пользователя")
	}
	return name, nil
}

func TestTrackKeepsExistingName(t *testing.T) {
	repo := &memConsumerRepo{all: []domain.Consumer{{ID: 1, Name: "old"}}}
	svc := NewService(repo, &staticResolver{}, 0, zerolog.Nop())

	got, err := svc.Track(context.Background(), domain.Consumer{ID: 1, Name: "new"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Name != "old" {
		t.Fatalf("имя существующей записи не должно меняться, получили %s", got.Name)
	}
}

func TestRefreshNamesUpdatesChanged(t *testing.T) {
	repo := &memConsumerRepo{all: []domain.Consumer{
		{ID: 1, Name: "same"},
		{ID: 2, Name: "stale"},
		{ID: 3, Name: "gone"},
	}}
	resolver := &staticResolver{names: map[int64]string{
		1: "same",
		2: "fresh",
	}}
	svc := NewService(repo, resolver, 0, zerolog.Nop())

	updated, err := svc.RefreshNames(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if updated != 1 {
		t.Fatalf("ожидали одно обновление, получили %d", updated)
	}
	if repo.updated[2] != "fresh" {
		t.Fatalf("имя не обновлено: %v", repo.updated)
	}
	if _, ok := repo.updated[1]; ok {
		t.Fatalf("неизменившееся имя не должно перезаписываться")
	}
	if _, ok := repo.updated[3]; ok {
		t.Fatalf("недоступный пользователь должен быть пропущен")
	}
}

func TestRefreshNamesPacesRequests(t *testing.T) {
	repo := &memConsumerRepo{all: []domain.Consumer{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
		{ID: 3, Name: "c"},
	}}
	resolver := &staticResolver{names: map[int64]string{1: "a", 2: "b", 3: "c"}}
	pace := 30 * time.Millisecond
	svc := NewService(repo, resolver, pace, zerolog.Nop())

	start := time.Now()
	if _, err := svc.RefreshNames(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Две паузы между тремя пользователями.
	if elapsed := time.Since(start); elapsed < 2*pace {
		t.Fatalf("обход не выдерживает паузу: %v", elapsed)
	}
}

func TestRefreshNamesHonorsCancellation(t *testing.T) {
	repo := &memConsumerRepo{all: []domain.Consumer{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
	}}
	resolver := &staticResolver{names: map[int64]string{1: "a", 2: "b"}}
	svc := NewService(repo, resolver, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.RefreshNames(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
}
