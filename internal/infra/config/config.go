package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		BotRoute   string `envconfig:"TG_BOT_ROUTE" default:"/bot/webhook"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	SettingsPath string `envconfig:"SETTINGS_PATH" default:"./userSettings.json"`

	Pending struct {
		TTL time.Duration `envconfig:"PENDING_TTL" default:"24h"`
	} `envconfig:""`

	Refresh struct {
		Queue string        `envconfig:"REFRESH_QUEUE_KEY" default:"consumer_refresh_jobs"`
		Delay time.Duration `envconfig:"REFRESH_DELAY" default:"15s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
