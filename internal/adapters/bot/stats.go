package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot/models"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/usecase/stats"
)

const noStatisticsText = "There are no statistics for this period. Perhaps you should specify an earlier date."

func (d *Dispatcher) topicStatistics(ctx context.Context, groupID int64) error {
	agg, has, err := d.stats.OpenTopics(ctx, groupID)
	if err != nil {
		return err
	}
	return d.sendTopicStatistic(ctx, groupID, agg, has)
}

func (d *Dispatcher) topicStatisticsByDate(ctx context.Context, groupID int64, text string) error {
	since := stats.ExtractDate(text, time.Now().UTC())
	agg, has, err := d.stats.ClosedTopicsSince(ctx, groupID, since.UTC())
	if err != nil {
		return err
	}
	return d.sendTopicStatistic(ctx, groupID, agg, has)
}

func (d *Dispatcher) sendTopicStatistic(ctx context.Context, groupID int64, agg domain.TopicStatistic, has bool) error {
	if !has {
		return d.send(ctx, domain.OutgoingMessage{ChatID: groupID, Text: noStatisticsText})
	}
	text := fmt.Sprintf("Statistic for a %d: \n", groupID) +
		fmt.Sprintf("Topic is an ask type count: %d, messages: %d \n", agg.CountAsk, agg.MessageInAskTopic) +
		fmt.Sprintf("Topic is an advt type count: %d, messages: %d \n", agg.CountAdvt, agg.MessageInAdvtTopic) +
		fmt.Sprintf("Topic is an news type count: %d, messages: %d \n", agg.CountNews, agg.MessageInNewsTopic)
	return d.send(ctx, domain.OutgoingMessage{ChatID: groupID, Text: text})
}

func (d *Dispatcher) channelSubscribes(ctx context.Context, msg *models.Message) error {
	channelID, err := d.bindings.Channel()
	if err != nil {
		return fmt.Errorf("чтение привязки канала: %w", err)
	}
	model, err := d.stats.Subscriptions(ctx, channelID, time.Now().UTC())
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Statistic for a %d: \n", channelID) +
		fmt.Sprintf("Subscribe for today: %d\n", model.Today) +
		fmt.Sprintf("Subscribe for month: %d\n", model.Month) +
		fmt.Sprintf("Subscribe for three month: %d\n", model.ThreeMonth)
	return d.send(ctx, domain.OutgoingMessage{ChatID: msg.Chat.ID, Text: text})
}
