package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-community-bot/internal/domain"
	"tg-community-bot/internal/usecase/bans"
	"tg-community-bot/internal/usecase/consumers"
	"tg-community-bot/internal/usecase/stats"
	"tg-community-bot/internal/usecase/topics"
)

// memRepo — общая in-memory реализация всех репозиториев.
type memRepo struct {
	consumers  map[int64]domain.Consumer
	topics     []domain.Topic
	activities []domain.Activity
	bans       []domain.BanRecord
	subs       []domain.SubscriptionEvent
}

func newMemRepo() *memRepo {
	return &memRepo{consumers: map[int64]domain.Consumer{}}
}

func (r *memRepo) GetOrCreate(ctx context.Context, c domain.Consumer) (domain.Consumer, error) {
	if existing, ok := r.consumers[c.ID]; ok {
		return existing, nil
	}
	r.consumers[c.ID] = c
	return c, nil
}

func (r *memRepo) GetByID(ctx context.Context, id int64) (domain.Consumer, error) {
	c, ok := r.consumers[id]
	if !ok {
		return domain.Consumer{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) GetByName(ctx context.Context, name string) (domain.Consumer, error) {
	for _, c := range r.consumers {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.Consumer{}, domain.ErrNotFound
}

func (r *memRepo) ListConsumers(ctx context.Context) ([]domain.Consumer, error) {
	out := make([]domain.Consumer, 0, len(r.consumers))
	for _, c := range r.consumers {
		out = append(out, c)
	}
	return out, nil
}

func (r *memRepo) UpdateName(ctx context.Context, id int64, name string) error {
	c, ok := r.consumers[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Name = name
	r.consumers[id] = c
	return nil
}

func (r *memRepo) CreateTopic(ctx context.Context, topic domain.Topic) error {
	r.topics = append(r.topics, topic)
	return nil
}

func (r *memRepo) FindOpen(ctx context.Context, groupID, ownerID int64, kind domain.TopicKind) (domain.Topic, error) {
	for _, t := range r.topics {
		if t.GroupID == groupID && t.OwnerID == ownerID && t.Kind == kind && t.ClosedAt == nil {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (r *memRepo) FindOpenByThread(ctx context.Context, groupID, threadID int64) (domain.Topic, error) {
	for _, t := range r.topics {
		if t.GroupID == groupID && t.ID == threadID && t.ClosedAt == nil {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (r *memRepo) FindByThread(ctx context.Context, threadID int64) (domain.Topic, error) {
	for _, t := range r.topics {
		if t.ID == threadID {
			return t, nil
		}
	}
	return domain.Topic{}, domain.ErrNotFound
}

func (r *memRepo) CloseTopic(ctx context.Context, threadID int64, at time.Time) error {
	for i := range r.topics {
		if r.topics[i].ID == threadID {
			r.topics[i].ClosedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memRepo) ListOpenStats(ctx context.Context, groupID int64) ([]domain.TopicStat, error) {
	var out []domain.TopicStat
	for _, t := range r.topics {
		if t.GroupID != groupID || t.ClosedAt != nil {
			continue
		}
		count := 0
		for _, a := range r.activities {
			if a.TopicID != nil && *a.TopicID == t.ID {
				count++
			}
		}
		out = append(out, domain.TopicStat{Topic: t, ActivityCount: count})
	}
	return out, nil
}

func (r *memRepo) ListClosedStatsSince(ctx context.Context, groupID int64, since time.Time) ([]domain.TopicStat, error) {
	var out []domain.TopicStat
	for _, t := range r.topics {
		if t.GroupID != groupID || t.ClosedAt == nil || t.CreatedAt.Before(since) {
			continue
		}
		out = append(out, domain.TopicStat{Topic: t})
	}
	return out, nil
}

func (r *memRepo) CreateActivity(ctx context.Context, activity domain.Activity) error {
	r.activities = append(r.activities, activity)
	return nil
}

func (r *memRepo) ListByTopic(ctx context.Context, topicID int64) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range r.activities {
		if a.TopicID != nil && *a.TopicID == topicID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) UpsertBan(ctx context.Context, ban domain.BanRecord) error {
	for i := range r.bans {
		if r.bans[i].ConsumerID == ban.ConsumerID && r.bans[i].ChatID == ban.ChatID {
			r.bans[i].Reason = ban.Reason
			return nil
		}
	}
	r.bans = append(r.bans, ban)
	return nil
}

func (r *memRepo) FindBan(ctx context.Context, consumerID, chatID int64) (domain.BanRecord, error) {
	for _, b := range r.bans {
		if b.ConsumerID == consumerID && b.ChatID == chatID {
			return b, nil
		}
	}
	return domain.BanRecord{}, domain.ErrNotFound
}

func (r *memRepo) DeleteBan(ctx context.Context, consumerID, chatID int64) error {
	for i, b := range r.bans {
		if b.ConsumerID == consumerID && b.ChatID == chatID {
			r.bans = append(r.bans[:i], r.bans[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memRepo) CreateSubscription(ctx context.Context, event domain.SubscriptionEvent) error {
	r.subs = append(r.subs, event)
	return nil
}

func (r *memRepo) ListByChannel(ctx context.Context, channelID int64) ([]domain.SubscriptionEvent, error) {
	var out []domain.SubscriptionEvent
	for _, e := range r.subs {
		if e.ChannelID == channelID {
			out = append(out, e)
		}
	}
	return out, nil
}

type sentDocument struct {
	chatID int64
	fileID string
}

type fakeMessenger struct {
	sent   []domain.OutgoingMessage
	docs   []sentDocument
	nextID int
}

func (m *fakeMessenger) SendMessage(ctx context.Context, msg domain.OutgoingMessage) (int, error) {
	m.sent = append(m.sent, msg)
	m.nextID++
	return 1000 + m.nextID, nil
}

func (m *fakeMessenger) SendDocument(ctx context.Context, chatID int64, threadID int, fileID, caption string) error {
	m.docs = append(m.docs, sentDocument{chatID: chatID, fileID: fileID})
	return nil
}

func (m *fakeMessenger) ChatMemberCount(ctx context.Context, chatID int64) (int, error) {
	return 42, nil
}

func (m *fakeMessenger) lastText(t *testing.T) string {
	t.Helper()
	if len(m.sent) == 0 {
		t.Fatalf("ничего не отправлено")
	}
	return m.sent[len(m.sent)-1].Text
}

type fakeForum struct {
	nextThread int64
	created    []string
}

func (f *fakeForum) CreateTopic(ctx context.Context, groupID int64, name string) (int64, error) {
	f.nextThread++
	f.created = append(f.created, name)
	return f.nextThread, nil
}

func (f *fakeForum) DeleteTopic(ctx context.Context, groupID, threadID int64) error {
	return nil
}

type fakeModerator struct {
	members map[int64]bool
}

func (m *fakeModerator) IsChatMember(ctx context.Context, chatID, userID int64) (bool, error) {
	return m.members[userID], nil
}

func (m *fakeModerator) Ban(ctx context.Context, chatID, userID int64) error { return nil }

func (m *fakeModerator) Unban(ctx context.Context, chatID, userID int64) error { return nil }

type fakeResolver struct{}

func (fakeResolver) Username(ctx context.Context, userID int64) (string, error) {
	return fmt.Sprintf("user%d", userID), nil
}

type fakeBindings struct {
	group   int64
	channel int64
}

func (b *fakeBindings) Group() (int64, error) { return b.group, nil }
func (b *fakeBindings) SetGroup(id int64) error {
	b.group = id
	return nil
}
func (b *fakeBindings) UnsetGroup(id int64) error {
	if b.group == id {
		b.group = 0
	}
	return nil
}
func (b *fakeBindings) Channel() (int64, error) { return b.channel, nil }
func (b *fakeBindings) SetChannel(id int64) error {
	b.channel = id
	return nil
}
func (b *fakeBindings) UnsetChannel(id int64) error {
	if b.channel == id {
		b.channel = 0
	}
	return nil
}

type memPending struct {
	m map[int64]domain.PendingInteraction
}

func (p *memPending) Put(ctx context.Context, userID int64, in domain.PendingInteraction) error {
	p.m[userID] = in
	return nil
}

func (p *memPending) Get(ctx context.Context, userID int64) (domain.PendingInteraction, error) {
	in, ok := p.m[userID]
	if !ok {
		return domain.PendingInteraction{}, domain.ErrNotFound
	}
	return in, nil
}

func (p *memPending) Delete(ctx context.Context, userID int64) error {
	delete(p.m, userID)
	return nil
}

type memQueue struct {
	jobs []domain.RefreshJob
}

func (q *memQueue) Enqueue(ctx context.Context, job domain.RefreshJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (domain.RefreshJob, error) {
	if len(q.jobs) == 0 {
		return domain.RefreshJob{}, domain.ErrNotFound
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

type fixture struct {
	dispatcher *Dispatcher
	repo       *memRepo
	messenger  *fakeMessenger
	forum      *fakeForum
	bindings   *fakeBindings
	pending    *memPending
	queue      *memQueue
	moderator  *fakeModerator
}

func newFixture(bindings *fakeBindings) *fixture {
	repo := newMemRepo()
	messenger := &fakeMessenger{}
	forum := &fakeForum{}
	moderator := &fakeModerator{members: map[int64]bool{}}
	pendingStore := &memPending{m: map[int64]domain.PendingInteraction{}}
	queue := &memQueue{}

	dispatcher := NewDispatcher(Deps{
		Log:          zerolog.Nop(),
		BotID:        testBotID,
		Consumers:    consumers.NewService(repo, fakeResolver{}, 0, zerolog.Nop()),
		Topics:       topics.NewService(repo, forum),
		Bans:         bans.NewService(repo, repo, moderator),
		Stats:        stats.NewService(repo, repo),
		TopicRepo:    repo,
		ActivityRepo: repo,
		Subscribes:   repo,
		Messenger:    messenger,
		Bindings:     bindings,
		Pending:      pendingStore,
		Queue:        queue,
	})

	return &fixture{
		dispatcher: dispatcher,
		repo:       repo,
		messenger:  messenger,
		forum:      forum,
		bindings:   bindings,
		pending:    pendingStore,
		queue:      queue,
		moderator:  moderator,
	}
}

const testBotID int64 = 424242

var updateID int64

func nextUpdateID() int64 {
	updateID++
	return updateID
}

func privateMessage(userID int64, text string) *models.Update {
	return &models.Update{
		ID: nextUpdateID(),
		Message: &models.Message{
			ID:   int(nextUpdateID()),
			From: &models.User{ID: userID, Username: fmt.Sprintf("user%d", userID), FirstName: "Ann"},
			Chat: models.Chat{
				ID:        userID,
				Type:      models.ChatTypePrivate,
				Username:  fmt.Sprintf("user%d", userID),
				FirstName: "Ann",
			},
			Text: text,
		},
	}
}

func groupMessage(chatID, userID int64, text string) *models.Update {
	return &models.Update{
		ID: nextUpdateID(),
		Message: &models.Message{
			ID:   int(nextUpdateID()),
			From: &models.User{ID: userID, Username: fmt.Sprintf("user%d", userID), FirstName: "Bob"},
			Chat: models.Chat{ID: chatID, Type: models.ChatTypeSupergroup},
			Text: text,
		},
	}
}

func replyTo(update *models.Update, promptID int, promptText, text string) *models.Update {
	reply := *update.Message
	reply.ID = int(nextUpdateID())
	reply.Text = text
	reply.ReplyToMessage = &models.Message{
		ID:   promptID,
		From: &models.User{ID: testBotID, IsBot: true},
		Text: promptText,
	}
	return &models.Update{ID: nextUpdateID(), Message: &reply}
}

func TestForeignGroupMessageIgnored(t *testing.T) {
	f := newFixture(&fakeBindings{group: 100})

	f.dispatcher.HandleUpdate(context.Background(), groupMessage(200, 5, "hello"))

	if len(f.messenger.sent) != 0 {
		t.Fatalf("сообщение чужой группы не должно обрабатываться: %v", f.messenger.sent)
	}
}

func TestUnsupportedUpdateIgnored(t *testing.T) {
	f := newFixture(&fakeBindings{})

	f.dispatcher.HandleUpdate(context.Background(), &models.Update{ID: nextUpdateID()})

	if len(f.messenger.sent) != 0 || len(f.repo.consumers) != 0 || len(f.repo.activities) != 0 {
		t.Fatalf("неподдерживаемый апдейт должен быть no-op")
	}
}

func TestPrivateUnrecognizedFallback(t *testing.T) {
	f := newFixture(&fakeBindings{group: 100})

	f.dispatcher.HandleUpdate(context.Background(), privateMessage(7, "hi there"))

	if got := f.messenger.lastText(t); got != fallbackText {
		t.Fatalf("ожидали фолбэк, получили %q", got)
	}
}

func TestAskWithoutBoundGroup(t *testing.T) {
	f := newFixture(&fakeBindings{})

	f.dispatcher.HandleUpdate(context.Background(), privateMessage(7, "/ask"))

	if got := f.messenger.lastText(t); got != noGroupText {
		t.Fatalf("ожидали отказ без группы, получили %q", got)
	}
	if len(f.pending.m) != 0 {
		t.Fatalf("ожидание не должно записываться без группы")
	}
}

func TestAskFlowCreatesTopicAndRelays(t *testing.T) {
	f := newFixture(&fakeBindings{group: 100})
	ctx := context.Background()

	ask := privateMessage(7, "/ask")
	f.dispatcher.HandleUpdate(ctx, ask)

	prompt := f.messenger.sent[len(f.messenger.sent)-1]
	if prompt.Text != askPromptText || prompt.Markup != domain.MarkupForceReply {
		t.Fatalf("неожиданный промпт: %+v", prompt)
	}
	interaction, ok := f.pending.m[7]
	if !ok || interaction.Kind != domain.PendingAskText {
		t.Fatalf("ожидание не записано: %+v", interaction)
	}

	f.dispatcher.HandleUpdate(ctx, replyTo(ask, interaction.PromptID, askPromptText, "how do I join?"))

	texts := sentTexts(f.messenger)
	if !contains(texts, "U asked: how do I join?. We'll answered soon.") {
		t.Fatalf("нет подтверждения пользователю: %v", texts)
	}
	if !contains(texts, "@user7 asked: how do I join?") {
		t.Fatalf("нет публикации в тред: %v", texts)
	}
	relay := f.messenger.sent[len(f.messenger.sent)-1]
	if relay.ChatID != 100 || relay.ThreadID == 0 {
		t.Fatalf("публикация пошла не в тред: %+v", relay)
	}
	if len(f.forum.created) != 1 || f.forum.created[0] != "Ann - Ask" {
		t.Fatalf("тема не создана: %v", f.forum.created)
	}
	if _, ok := f.pending.m[7]; ok {
		t.Fatalf("ожидание должно сниматься после ответа")
	}

	// Повторное обращение переиспользует открытую тему.
	ask2 := privateMessage(7, "/ask")
	f.dispatcher.HandleUpdate(ctx, ask2)
	interaction2 := f.pending.m[7]
	f.dispatcher.HandleUpdate(ctx, replyTo(ask2, interaction2.PromptID, askPromptText, "second question"))

	if len(f.forum.created) != 1 {
		t.Fatalf("открытая тема должна переиспользоваться, создано %d", len(f.forum.created))
	}
}

func TestPrivateReplyCommandRejected(t *testing.T) {
	f := newFixture(&fakeBindings{group: 100})
	ctx := context.Background()

	ask := privateMessage(7, "/ask")
	f.dispatcher.HandleUpdate(ctx, ask)
	interaction := f.pending.m[7]

	f.dispatcher.HandleUpdate(ctx, replyTo(ask, interaction.PromptID, askPromptText, "/oops"))

	if got := f.messenger.lastText(t); got != replyCommandText {
		t.Fatalf("ожидали отказ, получили %q", got)
	}
	if _, ok := f.pending.m[7]; !ok {
		t.Fatalf("ожидание должно сохраняться: пользователь может ответить снова")
	}
	if len(f.forum.created) != 0 {
		t.Fatalf("тема не должна создаваться")
	}
}

func TestExpiredPendingFallsBack(t *testing.T) {
	f := newFixture(&fakeBindings{group: 100})

	ask := privateMessage(7, "/ask")
	f.dispatcher.HandleUpdate(context.Background(), ask)
	delete(f.pending.m, 7) // ожидание истекло

	f.dispatcher.HandleUpdate(context.Background(), replyTo(ask, 1001, askPromptText, "too late"))

	if got := f.messenger.lastText(t); got != fallbackText {
		t.Fatalf("ожидали фолбэк, получили %q", got)
	}
}

func TestGroupReplyToHumanMessageIgnored(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})

	msg := groupMessage(300, 5, "agreed")
	msg.Message.ReplyToMessage = &models.Message{
		ID:   77,
		From: &models.User{ID: 6, Username: "user6", FirstName: "Eve"},
		Text: "what do you think?",
	}
	f.dispatcher.HandleUpdate(context.Background(), msg)

	if len(f.messenger.sent) != 0 {
		t.Fatalf("ответ участнику не должен трогать бота: %v", f.messenger.sent)
	}
}

func TestPrivateReplyToHumanMessageIgnored(t *testing.T) {
	f := newFixture(&fakeBindings{group: 100})
	ctx := context.Background()

	ask := privateMessage(7, "/ask")
	f.dispatcher.HandleUpdate(ctx, ask)
	sentBefore := len(f.messenger.sent)

	reply := replyTo(ask, 1001, askPromptText, "actually, forget it")
	reply.Message.ReplyToMessage.From = &models.User{ID: 9, Username: "user9"}
	f.dispatcher.HandleUpdate(ctx, reply)

	if len(f.messenger.sent) != sentBefore {
		t.Fatalf("ответ на чужое сообщение должен игнорироваться: %v", f.messenger.sent)
	}
	if _, ok := f.pending.m[7]; !ok {
		t.Fatalf("ожидание должно сохраниться")
	}
}

func TestSetAndUnsetGroup(t *testing.T) {
	f := newFixture(&fakeBindings{})
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, groupMessage(300, 5, "/set_group"))
	if f.bindings.group != 300 {
		t.Fatalf("группа не привязана: %d", f.bindings.group)
	}
	if got := f.messenger.lastText(t); got != "Group was set." {
		t.Fatalf("неожиданный ответ: %q", got)
	}

	f.dispatcher.HandleUpdate(ctx, groupMessage(300, 5, "/unset_group"))
	if f.bindings.group != 0 {
		t.Fatalf("группа не отвязана: %d", f.bindings.group)
	}
	if got := f.messenger.lastText(t); got != "Group was unset." {
		t.Fatalf("неожиданный ответ: %q", got)
	}
}

func TestBanUsage(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300, channel: -500})

	f.dispatcher.HandleUpdate(context.Background(), groupMessage(300, 5, "/ban"))

	if got := f.messenger.lastText(t); got != banUsageText {
		t.Fatalf("ожидали подсказку, получили %q", got)
	}
}

func TestBanFlow(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300, channel: -500})
	ctx := context.Background()

	// Пользователь становится известен боту через любое сообщение.
	f.dispatcher.HandleUpdate(ctx, privateMessage(7, "hi"))
	f.moderator.members[7] = true

	f.dispatcher.HandleUpdate(ctx, groupMessage(300, 5, "/ban user7:spam"))

	if got := f.messenger.lastText(t); got != "User user7 was banned." {
		t.Fatalf("неожиданный ответ: %q", got)
	}
	if len(f.repo.bans) != 1 || f.repo.bans[0].Reason != "spam" || f.repo.bans[0].ChatID != -500 {
		t.Fatalf("запись о бане не создана: %+v", f.repo.bans)
	}

	f.dispatcher.HandleUpdate(ctx, groupMessage(300, 5, "/unban user7"))

	if got := f.messenger.lastText(t); got != "User user7 was unbanned." {
		t.Fatalf("неожиданный ответ: %q", got)
	}
	if len(f.repo.bans) != 0 {
		t.Fatalf("после разбана записей быть не должно: %+v", f.repo.bans)
	}
}

func TestBanUnknownUserStartsRefreshFlow(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300, channel: -500})
	ctx := context.Background()

	ban := groupMessage(300, 5, "/ban ghost:spam")
	f.dispatcher.HandleUpdate(ctx, ban)

	if got := f.messenger.lastText(t); got != consumerNotFoundText {
		t.Fatalf("ожидали промпт обновления, получили %q", got)
	}
	interaction, ok := f.pending.m[5]
	if !ok || interaction.Kind != domain.PendingRefreshConfirm {
		t.Fatalf("ожидание подтверждения не записано: %+v", interaction)
	}

	f.dispatcher.HandleUpdate(ctx, replyTo(ban, interaction.PromptID, consumerNotFoundText, "Yes"))

	if len(f.queue.jobs) != 1 {
		t.Fatalf("задача обновления не поставлена: %v", f.queue.jobs)
	}
	if f.queue.jobs[0].ChatID != 300 || f.queue.jobs[0].RequestedBy != 5 {
		t.Fatalf("неожиданная задача: %+v", f.queue.jobs[0])
	}
}

func TestAdminReplyReachesTopicOwner(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})
	ctx := context.Background()

	topic := domain.Topic{ID: 17, GroupID: 300, Name: "Ann - Ask", OwnerID: 7, Kind: domain.TopicAsk, CreatedAt: time.Now()}
	f.repo.topics = append(f.repo.topics, topic)
	topicID := topic.ID
	f.repo.activities = append(f.repo.activities,
		domain.Activity{ID: uuid.New(), Text: "first question", TopicID: &topicID},
		domain.Activity{ID: uuid.New(), Text: "latest question", TopicID: &topicID},
	)

	f.pending.m[5] = domain.PendingInteraction{Kind: domain.PendingAdminReply, PromptID: 1001, TopicID: 17}

	base := groupMessage(300, 5, "")
	answer := replyTo(base, 1001, sendPromptText, "all good")
	answer.Message.MessageThreadID = 17
	f.dispatcher.HandleUpdate(ctx, answer)

	last := f.messenger.sent[len(f.messenger.sent)-1]
	if last.ChatID != 7 {
		t.Fatalf("ответ должен уйти владельцу темы: %+v", last)
	}
	want := "Administrator Bob answered: all good to ur ask: latest question"
	if last.Text != want {
		t.Fatalf("ожидали %q, получили %q", want, last.Text)
	}
}

func TestSendCommandPromptsInsideThread(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})

	send := groupMessage(300, 5, "/send")
	send.Message.MessageThreadID = 17
	send.Message.IsTopicMessage = true
	f.dispatcher.HandleUpdate(context.Background(), send)

	prompt := f.messenger.sent[len(f.messenger.sent)-1]
	if prompt.Text != sendPromptText || prompt.ThreadID != 17 || prompt.Markup != domain.MarkupForceReply {
		t.Fatalf("неожиданный промпт: %+v", prompt)
	}
	interaction := f.pending.m[5]
	if interaction.Kind != domain.PendingAdminReply || interaction.TopicID != 17 {
		t.Fatalf("ожидание не записано: %+v", interaction)
	}
}

func TestSendCommandOutsideThreadFallsBack(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})

	f.dispatcher.HandleUpdate(context.Background(), groupMessage(300, 5, "/send"))

	if got := f.messenger.lastText(t); got != fallbackText {
		t.Fatalf("вне треда /send не команда, получили %q", got)
	}
	if len(f.pending.m) != 0 {
		t.Fatalf("ожидание не должно записываться")
	}
}

func TestAdminReplyToLostTopic(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})
	ctx := context.Background()

	send := groupMessage(300, 5, "/send")
	send.Message.MessageThreadID = 99
	send.Message.IsTopicMessage = true
	f.dispatcher.HandleUpdate(ctx, send)
	interaction := f.pending.m[5]

	answer := replyTo(send, interaction.PromptID, sendPromptText, "hello?")
	f.dispatcher.HandleUpdate(ctx, answer)

	if got := f.messenger.lastText(t); got != lostChatText {
		t.Fatalf("ожидали уведомление о потерянном чате, получили %q", got)
	}
}

func TestMembershipRecordedOnlyForBoundChannel(t *testing.T) {
	f := newFixture(&fakeBindings{channel: -500})
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, membershipUpdate(-500, 9, models.ChatMemberTypeMember))
	if len(f.repo.subs) != 1 {
		t.Fatalf("вступление в привязанный канал должно записываться: %d", len(f.repo.subs))
	}

	f.dispatcher.HandleUpdate(ctx, membershipUpdate(-600, 9, models.ChatMemberTypeMember))
	if len(f.repo.subs) != 1 {
		t.Fatalf("чужой канал не должен пополнять журнал: %d", len(f.repo.subs))
	}

	f.dispatcher.HandleUpdate(ctx, membershipUpdate(-500, 9, models.ChatMemberTypeLeft))
	if len(f.repo.subs) != 1 {
		t.Fatalf("выход не является вступлением: %d", len(f.repo.subs))
	}
}

func TestAdministratorEntryRecorded(t *testing.T) {
	f := newFixture(&fakeBindings{channel: -500})

	f.dispatcher.HandleUpdate(context.Background(), membershipUpdate(-500, 11, models.ChatMemberTypeAdministrator))

	if len(f.repo.subs) != 1 {
		t.Fatalf("назначение администратора является вступлением: %d", len(f.repo.subs))
	}
	if _, ok := f.repo.consumers[11]; !ok {
		t.Fatalf("пользователь не сохранён")
	}
}

func TestChannelPostBindsChannel(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, channelPost(-500, "/set_channel"))

	if f.bindings.channel != -500 {
		t.Fatalf("канал не привязан: %d", f.bindings.channel)
	}
	last := f.messenger.sent[len(f.messenger.sent)-1]
	if last.ChatID != 300 || last.Text != "Channel was set." {
		t.Fatalf("подтверждение должно уйти в группу: %+v", last)
	}
}

func TestTopicStatisticsEmpty(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})

	f.dispatcher.HandleUpdate(context.Background(), groupMessage(300, 5, "/topic_statistics"))

	if got := f.messenger.lastText(t); got != noStatisticsText {
		t.Fatalf("ожидали пустую статистику, получили %q", got)
	}
}

func TestTopicStatistics(t *testing.T) {
	f := newFixture(&fakeBindings{group: 300})

	topicID := int64(17)
	f.repo.topics = append(f.repo.topics, domain.Topic{ID: topicID, GroupID: 300, Kind: domain.TopicAsk})
	f.repo.activities = append(f.repo.activities,
		domain.Activity{ID: uuid.New(), TopicID: &topicID},
		domain.Activity{ID: uuid.New(), TopicID: &topicID},
	)

	f.dispatcher.HandleUpdate(context.Background(), groupMessage(300, 5, "/topic_statistics"))

	got := f.messenger.lastText(t)
	if !strings.Contains(got, "Topic is an ask type count: 1, messages: 2") {
		t.Fatalf("неожиданная статистика: %q", got)
	}
}

func membershipUpdate(chatID, userID int64, memberType models.ChatMemberType) *models.Update {
	member := models.ChatMember{Type: memberType}
	user := &models.User{ID: userID, Username: fmt.Sprintf("user%d", userID)}
	switch memberType {
	case models.ChatMemberTypeAdministrator:
		member.Administrator = &models.ChatMemberAdministrator{User: *user}
	case models.ChatMemberTypeMember:
		member.Member = &models.ChatMemberMember{User: user}
	case models.ChatMemberTypeLeft:
		member.Left = &models.ChatMemberLeft{User: user}
	}
	return &models.Update{
		ID: nextUpdateID(),
		ChatMember: &models.ChatMemberUpdated{
			Chat:          models.Chat{ID: chatID, Type: models.ChatTypeChannel},
			NewChatMember: member,
		},
	}
}

func channelPost(chatID int64, text string) *models.Update {
	return &models.Update{
		ID: nextUpdateID(),
		ChannelPost: &models.Message{
			ID:   int(nextUpdateID()),
			From: &models.User{ID: 1, Username: "channel_admin"},
			Chat: models.Chat{ID: chatID, Type: models.ChatTypeChannel},
			Text: text,
		},
	}
}

func sentTexts(m *fakeMessenger) []string {
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.Text)
	}
	return out
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
