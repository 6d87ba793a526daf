package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/infra/metrics"
)

//go:embed schema.sql
var schemaQuery string

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ConsumerRepo     = (*Postgres)(nil)
	_ domain.TopicRepo        = (*Postgres)(nil)
	_ domain.ActivityRepo     = (*Postgres)(nil)
	_ domain.BanRepo          = (*Postgres)(nil)
	_ domain.SubscriptionRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema применяет встроенную схему.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schemaQuery)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	if err != nil {
		return fmt.Errorf("применение схемы: %w", err)
	}
	return nil
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetOrCreate реализует domain.ConsumerRepo. Повторные вставки того же
// пользователя безопасны: первая запись выигрывает, имя не перезаписывается.
func (p *Postgres) GetOrCreate(ctx context.Context, consumer domain.Consumer) (domain.Consumer, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO consumers (id, name, is_bot, entry_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING
`, consumer.ID, consumer.Name, consumer.IsBot, consumer.EntryDate)
	metrics.ObserveNetworkRequest("postgres", "consumers_insert", "consumers", start, err)
	if err != nil {
		return domain.Consumer{}, err
	}
	return p.GetByID(ctx, consumer.ID)
}

// GetByID возвращает пользователя по идентификатору.
func (p *Postgres) GetByID(ctx context.Context, id int64) (domain.Consumer, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var c domain.Consumer
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, is_bot, entry_date FROM consumers WHERE id=$1
`, id).Scan(&c.ID, &c.Name, &c.IsBot, &c.EntryDate)
	metrics.ObserveNetworkRequest("postgres", "consumers_get_by_id", "consumers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Consumer{}, domain.ErrNotFound
	}
	return c, err
}

// GetByName возвращает пользователя по закэшированному имени.
// Сравнение точное, с учётом регистра.
func (p *Postgres) GetByName(ctx context.Context, name string) (domain.Consumer, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var c domain.Consumer
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, is_bot, entry_date FROM consumers WHERE name=$1
`, name).Scan(&c.ID, &c.Name, &c.IsBot, &c.EntryDate)
	metrics.ObserveNetworkRequest("postgres", "consumers_get_by_name", "consumers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Consumer{}, domain.ErrNotFound
	}
	return c, err
}

// ListConsumers возвращает всех пользователей.
func (p *Postgres) ListConsumers(ctx context.Context) ([]domain.Consumer, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, is_bot, entry_date FROM consumers ORDER BY entry_date
`)
	metrics.ObserveNetworkRequest("postgres", "consumers_list", "consumers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var consumers []domain.Consumer
	for rows.Next() {
		var c domain.Consumer
		if err := rows.Scan(&c.ID, &c.Name, &c.IsBot, &c.EntryDate); err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
	}
	return consumers, rows.Err()
}

// UpdateName обновляет закэшированное имя пользователя.
func (p *Postgres) UpdateName(ctx context.Context, id int64, name string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE consumers SET name=$2 WHERE id=$1`, id, name)
	metrics.ObserveNetworkRequest("postgres", "consumers_update_name", "consumers", start, err)
	return err
}

// CreateTopic реализует domain.TopicRepo.
func (p *Postgres) CreateTopic(ctx context.Context, topic domain.Topic) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO topics (id, group_id, name, owner_id, kind, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, topic.ID, topic.GroupID, topic.Name, topic.OwnerID, string(topic.Kind), topic.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "topics_insert", "topics", start, err)
	return err
}

func scanTopic(row pgx.Row) (domain.Topic, error) {
	var (
		t      domain.Topic
		kind   string
		closed sql.NullTime
	)
	err := row.Scan(&t.ID, &t.GroupID, &t.Name, &t.OwnerID, &kind, &t.CreatedAt, &closed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Topic{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Topic{}, err
	}
	t.Kind = domain.TopicKind(kind)
	if closed.Valid {
		ts := closed.Time
		t.ClosedAt = &ts
	}
	return t, nil
}

const topicColumns = `id, group_id, name, owner_id, kind, created_at, closed_at`

// FindOpen возвращает открытую тему по тройке (группа, владелец, вид).
func (p *Postgres) FindOpen(ctx context.Context, groupID, ownerID int64, kind domain.TopicKind) (domain.Topic, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+topicColumns+` FROM topics
WHERE group_id=$1 AND owner_id=$2 AND kind=$3 AND closed_at IS NULL
`, groupID, ownerID, string(kind))
	topic, err := scanTopic(row)
	metrics.ObserveNetworkRequest("postgres", "topics_find_open", "topics", start, err)
	return topic, err
}

// FindOpenByThread возвращает открытую тему группы по идентификатору треда.
func (p *Postgres) FindOpenByThread(ctx context.Context, groupID, threadID int64) (domain.Topic, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+topicColumns+` FROM topics
WHERE group_id=$1 AND id=$2 AND closed_at IS NULL
`, groupID, threadID)
	topic, err := scanTopic(row)
	metrics.ObserveNetworkRequest("postgres", "topics_find_open_by_thread", "topics", start, err)
	return topic, err
}

// FindByThread ищет тему по идентификатору треда независимо от статуса.
func (p *Postgres) FindByThread(ctx context.Context, threadID int64) (domain.Topic, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+topicColumns+` FROM topics WHERE id=$1
`, threadID)
	topic, err := scanTopic(row)
	metrics.ObserveNetworkRequest("postgres", "topics_find_by_thread", "topics", start, err)
	return topic, err
}

// CloseTopic выставляет время закрытия темы.
func (p *Postgres) CloseTopic(ctx context.Context, threadID int64, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE topics SET closed_at=$2 WHERE id=$1`, threadID, at)
	metrics.ObserveNetworkRequest("postgres", "topics_close", "topics", start, err)
	return err
}

func (p *Postgres) listTopicStats(ctx context.Context, query string, args ...any) ([]domain.TopicStat, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []domain.TopicStat
	for rows.Next() {
		var (
			s      domain.TopicStat
			kind   string
			closed sql.NullTime
		)
		if err := rows.Scan(&s.Topic.ID, &s.Topic.GroupID, &s.Topic.Name, &s.Topic.OwnerID,
			&kind, &s.Topic.CreatedAt, &closed, &s.ActivityCount); err != nil {
			return nil, err
		}
		s.Topic.Kind = domain.TopicKind(kind)
		if closed.Valid {
			ts := closed.Time
			s.Topic.ClosedAt = &ts
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ListOpenStats возвращает открытые темы группы с количеством активностей.
func (p *Postgres) ListOpenStats(ctx context.Context, groupID int64) ([]domain.TopicStat, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	stats, err := p.listTopicStats(ctx, `
SELECT t.id, t.group_id, t.name, t.owner_id, t.kind, t.created_at, t.closed_at,
       COUNT(a.id)
FROM topics t
LEFT JOIN activities a ON a.topic_id = t.id
WHERE t.group_id=$1 AND t.closed_at IS NULL
GROUP BY t.id
`, groupID)
	metrics.ObserveNetworkRequest("postgres", "topics_list_open_stats", "topics", start, err)
	return stats, err
}

// ListClosedStatsSince возвращает закрытые темы группы, созданные не раньше since.
func (p *Postgres) ListClosedStatsSince(ctx context.Context, groupID int64, since time.Time) ([]domain.TopicStat, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	stats, err := p.listTopicStats(ctx, `
SELECT t.id, t.group_id, t.name, t.owner_id, t.kind, t.created_at, t.closed_at,
       COUNT(a.id)
FROM topics t
LEFT JOIN activities a ON a.topic_id = t.id
WHERE t.group_id=$1 AND t.created_at >= $2 AND t.closed_at IS NOT NULL
GROUP BY t.id
`, groupID, since)
	metrics.ObserveNetworkRequest("postgres", "topics_list_closed_stats", "topics", start, err)
	return stats, err
}

// CreateActivity добавляет запись в журнал активности.
func (p *Postgres) CreateActivity(ctx context.Context, activity domain.Activity) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO activities (id, update_id, kind, chat_kind, text, occurred_at, topic_id, consumer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		activity.ID, activity.UpdateID, string(activity.Kind), activity.ChatKind,
		activity.Text, activity.Time, activity.TopicID, activity.ConsumerID,
	)
	metrics.ObserveNetworkRequest("postgres", "create_activity", "activities", start, err)
	if err != nil {
		return fmt.Errorf("вставка активности: %w", err)
	}
	return nil
}

// ListByTopic возвращает активности темы в порядке возрастания времени.
func (p *Postgres) ListByTopic(ctx context.Context, topicID int64) ([]domain.Activity, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
		SELECT id, update_id, kind, chat_kind, text, occurred_at, topic_id, consumer_id
		FROM activities
		WHERE topic_id = $1
		ORDER BY occurred_at`,
		topicID,
	)
	metrics.ObserveNetworkRequest("postgres", "list_by_topic", "activities", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка активностей: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var (
			a    domain.Activity
			kind string
			text sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UpdateID, &kind, &a.ChatKind, &text, &a.Time, &a.TopicID, &a.ConsumerID); err != nil {
			return nil, fmt.Errorf("чтение активности: %w", err)
		}
		a.Kind = domain.UpdateKind(kind)
		a.Text = text.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход активностей: %w", err)
	}
	return out, nil
}

// UpsertBan создаёт запись о бане либо заменяет причину существующей.
func (p *Postgres) UpsertBan(ctx context.Context, ban domain.BanRecord) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO bans (id, consumer_id, reason, chat_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (consumer_id, chat_id) DO UPDATE SET reason = EXCLUDED.reason`,
		ban.ID, ban.ConsumerID, ban.Reason, ban.ChatID,
	)
	metrics.ObserveNetworkRequest("postgres", "upsert_ban", "bans", start, err)
	if err != nil {
		return fmt.Errorf("вставка бана: %w", err)
	}
	return nil
}

// FindBan ищет действующий бан пары (consumer, chat).
func (p *Postgres) FindBan(ctx context.Context, consumerID, chatID int64) (domain.BanRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
		SELECT id, consumer_id, reason, chat_id
		FROM bans
		WHERE consumer_id = $1 AND chat_id = $2`,
		consumerID, chatID,
	)
	var ban domain.BanRecord
	err := row.Scan(&ban.ID, &ban.ConsumerID, &ban.Reason, &ban.ChatID)
	metrics.ObserveNetworkRequest("postgres", "find_ban", "bans", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BanRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BanRecord{}, fmt.Errorf("поиск бана: %w", err)
	}
	return ban, nil
}

// DeleteBan снимает бан пары (consumer, chat).
func (p *Postgres) DeleteBan(ctx context.Context, consumerID, chatID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM bans WHERE consumer_id = $1 AND chat_id = $2`, consumerID, chatID)
	metrics.ObserveNetworkRequest("postgres", "delete_ban", "bans", start, err)
	if err != nil {
		return fmt.Errorf("удаление бана: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateSubscription добавляет событие вступления в канал.
func (p *Postgres) CreateSubscription(ctx context.Context, event domain.SubscriptionEvent) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO subscription_events (id, channel_id, entry_date)
		VALUES ($1, $2, $3)`,
		event.ID, event.ChannelID, event.EntryDate,
	)
	metrics.ObserveNetworkRequest("postgres", "create_subscription", "subscription_events", start, err)
	if err != nil {
		return fmt.Errorf("вставка подписки: %w", err)
	}
	return nil
}

// ListByChannel возвращает все вступления в канал.
func (p *Postgres) ListByChannel(ctx context.Context, channelID int64) ([]domain.SubscriptionEvent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
		SELECT id, channel_id, entry_date
		FROM subscription_events
		WHERE channel_id = $1`,
		channelID,
	)
	metrics.ObserveNetworkRequest("postgres", "list_by_channel", "subscription_events", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка подписок: %w", err)
	}
	defer rows.Close()

	var out []domain.SubscriptionEvent
	for rows.Next() {
		var e domain.SubscriptionEvent
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.EntryDate); err != nil {
			return nil, fmt.Errorf("чтение подписки: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход подписок: %w", err)
	}
	return out, nil
}
