package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-community-bot/internal/adapters/repo"
	"tg-community-bot/internal/adapters/telegram"
	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/config"
	"tg-community-bot/internal/infra/db"
	"tg-community-bot/internal/infra/log"
	"tg-community-bot/internal/infra/metrics"
	"tg-community-bot/internal/infra/queue"
	"tg-community-bot/internal/usecase/consumers"
)

const (
	refreshStartedText  = "The update has started, Expect the end."
	refreshFinishedText = "The update has finished. Try banning the user again."
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	tgClient, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиента telegram")
	}

	repoAdapter := repo.NewPostgres(pool)
	consumerService := consumers.NewService(repoAdapter, tgClient, cfg.Refresh.Delay, logger)
	refreshQueue := newRefreshQueue(cfg, redisClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		logger.Info().Msg("остановка воркера")
		cancel()
	}()

	logger.Info().Msg("воркер обновления имён запущен")
	for {
		job, err := refreshQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("не удалось получить задачу")
			continue
		}
		runJob(ctx, logger, consumerService, tgClient, job)
	}
}

// runJob выполняет одну задачу обновления, уведомляя заказавший чат о
// начале и завершении.
func runJob(ctx context.Context, logger zerolog.Logger, svc *consumers.Service, messenger domain.Messenger, job domain.RefreshJob) {
	logger.Info().Int64("chat_id", job.ChatID).Int64("requested_by", job.RequestedBy).Msg("задача обновления принята")

	if _, err := messenger.SendMessage(ctx, domain.OutgoingMessage{ChatID: job.ChatID, Text: refreshStartedText}); err != nil {
		logger.Warn().Err(err).Msg("не удалось уведомить о старте")
	}

	updated, err := svc.RefreshNames(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("обновление имён прервано")
		return
	}
	metrics.RefreshedConsumers.Add(float64(updated))

	if _, err := messenger.SendMessage(ctx, domain.OutgoingMessage{ChatID: job.ChatID, Text: refreshFinishedText}); err != nil {
		logger.Warn().Err(err).Msg("не удалось уведомить о завершении")
	}
	logger.Info().Int("updated", updated).Msg("обновление имён завершено")
}

func newRefreshQueue(cfg config.AppConfig, redisClient *redis.Client, logger zerolog.Logger) domain.RefreshQueue {
	if cfg.AMQPURL != "" {
		q, err := queue.NewRabbitRefreshQueue(cfg.AMQPURL, cfg.Refresh.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к rabbitmq")
		}
		return q
	}
	return queue.NewRedisRefreshQueue(redisClient, cfg.Refresh.Queue)
}
