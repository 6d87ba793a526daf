package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tg-community-bot/internal/domain"
)

// DateLayout — формат даты в команде статистики по закрытым темам.
const DateLayout = "02-01-2006"

// ExtractDate разбирает дату из хвоста команды. Непарсящийся хвост
// молча превращается в now: статистика тогда считается от текущего
// момента.
func ExtractDate(text string, now time.Time) time.Time {
	_, tail, ok := strings.Cut(text, " ")
	if !ok {
		return now
	}
	tail = strings.Trim(strings.TrimSpace(tail), `"`)
	parsed, err := time.Parse(DateLayout, tail)
	if err != nil {
		return now
	}
	return parsed
}

// AggregateTopics сворачивает список тем со счётчиками в агрегат по видам.
func AggregateTopics(topicStats []domain.TopicStat) domain.TopicStatistic {
	var agg domain.TopicStatistic
	for _, ts := range topicStats {
		switch ts.Topic.Kind {
		case domain.TopicAsk:
			agg.CountAsk++
			agg.MessageInAskTopic += ts.ActivityCount
		case domain.TopicAdvt:
			agg.CountAdvt++
			agg.MessageInAdvtTopic += ts.ActivityCount
		case domain.TopicNews:
			agg.CountNews++
			agg.MessageInNewsTopic += ts.ActivityCount
		}
	}
	return agg
}

// BucketSubscriptions раскладывает вступления по трём окнам с
// включающими порогами: начало сегодняшнего дня, месяц назад и три
// месяца назад от начала дня.
func BucketSubscriptions(events []domain.SubscriptionEvent, now time.Time) domain.SubscribeStatistic {
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthAgo := startOfToday.AddDate(0, -1, 0)
	threeMonthsAgo := startOfToday.AddDate(0, -3, 0)

	var model domain.SubscribeStatistic
	for _, e := range events {
		if !e.EntryDate.Before(startOfToday) {
			model.Today++
		}
		if !e.EntryDate.Before(monthAgo) {
			model.Month++
		}
		if !e.EntryDate.Before(threeMonthsAgo) {
			model.ThreeMonth++
		}
	}
	return model
}

// Service считает статистику по темам группы и подпискам канала.
type Service struct {
	topics domain.TopicRepo
	subs   domain.SubscriptionRepo
}

// NewService создаёт новый сервис статистики.
func NewService(topics domain.TopicRepo, subs domain.SubscriptionRepo) *Service {
	return &Service{topics: topics, subs: subs}
}

// OpenTopics возвращает агрегат по открытым темам группы и признак
// того, что темы вообще есть.
func (s *Service) OpenTopics(ctx context.Context, groupID int64) (domain.TopicStatistic, bool, error) {
	topicStats, err := s.topics.ListOpenStats(ctx, groupID)
	if err != nil {
		return domain.TopicStatistic{}, false, fmt.Errorf("выборка открытых тем: %w", err)
	}
	return AggregateTopics(topicStats), len(topicStats) > 0, nil
}

// ClosedTopicsSince возвращает агрегат по закрытым темам, созданным
// не раньше since.
func (s *Service) ClosedTopicsSince(ctx context.Context, groupID int64, since time.Time) (domain.TopicStatistic, bool, error) {
	topicStats, err := s.topics.ListClosedStatsSince(ctx, groupID, since)
	if err != nil {
		return domain.TopicStatistic{}, false, fmt.Errorf("выборка закрытых тем: %w", err)
	}
	return AggregateTopics(topicStats), len(topicStats) > 0, nil
}

// Subscriptions возвращает окна вступлений в канал.
func (s *Service) Subscriptions(ctx context.Context, channelID int64, now time.Time) (domain.SubscribeStatistic, error) {
	events, err := s.subs.ListByChannel(ctx, channelID)
	if err != nil {
		return domain.SubscribeStatistic{}, fmt.Errorf("выборка подписок: %w", err)
	}
	return BucketSubscriptions(events, now), nil
}
