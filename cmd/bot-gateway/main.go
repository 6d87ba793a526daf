package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-community-bot/internal/adapters/bot"
	"tg-community-bot/internal/adapters/repo"
	"tg-community-bot/internal/adapters/telegram"
	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/config"
	"tg-community-bot/internal/infra/db"
	infrahttp "tg-community-bot/internal/infra/http"
	"tg-community-bot/internal/infra/log"
	"tg-community-bot/internal/infra/metrics"
	"tg-community-bot/internal/infra/pending"
	"tg-community-bot/internal/infra/queue"
	"tg-community-bot/internal/infra/settings"
	"tg-community-bot/internal/usecase/bans"
	"tg-community-bot/internal/usecase/consumers"
	"tg-community-bot/internal/usecase/stats"
	"tg-community-bot/internal/usecase/topics"
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

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить схему")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	bindings, err := settings.NewStore(cfg.SettingsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось открыть настройки")
	}

	tgClient, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать клиента telegram")
	}
	botID, err := tgClient.BotID(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось получить идентификатор бота")
	}

	topicService := topics.NewService(repoAdapter, tgClient)
	banService := bans.NewService(repoAdapter, repoAdapter, tgClient)
	statService := stats.NewService(repoAdapter, repoAdapter)
	consumerService := consumers.NewService(repoAdapter, tgClient, cfg.Refresh.Delay, logger)

	dispatcher := bot.NewDispatcher(bot.Deps{
		Log:          logger,
		BotID:        botID,
		Consumers:    consumerService,
		Topics:       topicService,
		Bans:         banService,
		Stats:        statService,
		TopicRepo:    repoAdapter,
		ActivityRepo: repoAdapter,
		Subscribes:   repoAdapter,
		Messenger:    tgClient,
		Bindings:     bindings,
		Pending:      pending.NewRedis(redisClient, cfg.Pending.TTL),
		Queue:        newRefreshQueue(cfg, redisClient, logger),
	})

	srv := infrahttp.NewServer(logger)
	srv.Router.Post(cfg.Telegram.BotRoute, func(w http.ResponseWriter, r *http.Request) {
		var update models.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dispatcher.HandleUpdate(r.Context(), &update)
		w.WriteHeader(http.StatusOK)
	})

	if cfg.Telegram.WebhookURL != "" {
		if err := tgClient.RegisterWebhook(context.Background(), cfg.Telegram.WebhookURL+cfg.Telegram.BotRoute); err != nil {
			logger.Fatal().Err(err).Msg("не удалось зарегистрировать вебхук")
		}
	}

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бот-гейтвея")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cfg.Telegram.WebhookURL != "" {
		if err := tgClient.UnregisterWebhook(ctx); err != nil {
			logger.Warn().Err(err).Msg("не удалось снять вебхук")
		}
	}
	_ = srv.Shutdown(ctx)
}

// newRefreshQueue выбирает реализацию очереди: RabbitMQ при заданном
// AMQP_URL, иначе список в Redis.
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
