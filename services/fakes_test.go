package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const me = "u-me"

// ─── fake repository'ler ───

type fakeMessageRepo struct {
	mu    sync.Mutex
	calls []string

	sendFn   func(ctx context.Context, channelID string, d models.Draft) (*models.Message, error)
	updateFn func(ctx context.Context, id, content string) (*models.Message, error)
	deleteFn func(ctx context.Context, id string) error
	listFn   func(kind, id, cursor string) (*models.MessagePage, error)
}

func (r *fakeMessageRepo) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *fakeMessageRepo) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeMessageRepo) Send(ctx context.Context, channelID string, d models.Draft) (*models.Message, error) {
	r.record("send:" + channelID)
	return r.sendFn(ctx, channelID, d)
}

func (r *fakeMessageRepo) Update(ctx context.Context, id, content string) (*models.Message, error) {
	r.record("update:" + id)
	return r.updateFn(ctx, id, content)
}

func (r *fakeMessageRepo) Delete(ctx context.Context, id string) error {
	r.record("delete:" + id)
	return r.deleteFn(ctx, id)
}

func (r *fakeMessageRepo) ListChannel(_ context.Context, channelID, before string, _ int) (*models.MessagePage, error) {
	r.record("list_channel:" + channelID + ":" + before)
	return r.listFn("channel", channelID, before)
}

func (r *fakeMessageRepo) ListThread(_ context.Context, parentID, after string, _ int) (*models.MessagePage, error) {
	r.record("list_thread:" + parentID + ":" + after)
	return r.listFn("thread", parentID, after)
}

func (r *fakeMessageRepo) ListUnreadFeed(_ context.Context, workspaceID, cursor string, _ int) (*models.MessagePage, error) {
	r.record("list_feed:" + workspaceID + ":" + cursor)
	return r.listFn("feed", workspaceID, cursor)
}

type fakeReactionRepo struct {
	fn func(ctx context.Context, messageID, emoji string, add bool) error
}

func (r *fakeReactionRepo) Add(ctx context.Context, messageID, emoji string) error {
	return r.fn(ctx, messageID, emoji, true)
}

func (r *fakeReactionRepo) Remove(ctx context.Context, messageID, emoji string) error {
	return r.fn(ctx, messageID, emoji, false)
}

type fakeReadStateRepo struct {
	mu        sync.Mutex
	err       error
	lastRead  map[string]string
	threads   []string
	unreadFor func(workspaceID string) []models.UnreadInfo
}

func (r *fakeReadStateRepo) MarkChannelRead(_ context.Context, channelID, lastReadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRead == nil {
		r.lastRead = make(map[string]string)
	}
	r.lastRead[channelID] = lastReadID
	return r.err
}

func (r *fakeReadStateRepo) MarkThreadRead(_ context.Context, parentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = append(r.threads, parentID)
	return r.err
}

func (r *fakeReadStateRepo) GetUnreadCounts(_ context.Context, workspaceID string) ([]models.UnreadInfo, error) {
	if r.unreadFor == nil {
		return nil, nil
	}
	return r.unreadFor(workspaceID), nil
}

type fakeChannelRepo struct {
	channels  func(workspaceID string) ([]models.ChannelSummary, error)
	threads   []models.ThreadSummary
	starErr   error
	beforeRet func()
}

func (r *fakeChannelRepo) List(_ context.Context, workspaceID string) ([]models.ChannelSummary, error) {
	if r.beforeRet != nil {
		r.beforeRet()
	}
	return r.channels(workspaceID)
}

func (r *fakeChannelRepo) ListThreads(context.Context, string) ([]models.ThreadSummary, error) {
	return r.threads, nil
}

func (r *fakeChannelRepo) SetStarred(context.Context, string, bool) error {
	return r.starErr
}

// ─── test ortamı ───

type harness struct {
	clock     *clock.Mock
	messages  *store.MessageStore
	channels  *store.ChannelStore
	msgRepo   *fakeMessageRepo
	reactRepo *fakeReactionRepo
	readRepo  *fakeReadStateRepo
	chanRepo  *fakeChannelRepo
	svc       MutationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(t0)

	h := &harness{
		clock:     clk,
		messages:  store.NewMessageStore(clk, zap.NewNop()),
		channels:  store.NewChannelStore(clk, zap.NewNop()),
		msgRepo:   &fakeMessageRepo{},
		reactRepo: &fakeReactionRepo{fn: func(context.Context, string, string, bool) error { return nil }},
		readRepo:  &fakeReadStateRepo{},
		chanRepo: &fakeChannelRepo{channels: func(string) ([]models.ChannelSummary, error) {
			return nil, nil
		}},
	}
	h.svc = NewMutationService(h.msgRepo, h.reactRepo, h.readRepo, h.chanRepo,
		h.messages, h.channels, me, clk, zap.NewNop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})

	h.channels.ApplySnapshot("w1", []models.ChannelSummary{
		{ID: "c1", WorkspaceID: "w1", Name: "general", UnreadCount: 5, NotificationCount: 1},
	}, t0)
	return h
}

func (h *harness) loadChannel(msgs ...models.Message) {
	h.messages.Replace(store.ChannelScope("c1"), models.MessagePage{Messages: msgs, Cursor: "", HasMore: false})
}

func waitAction(t *testing.T, a *Action) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "action %s did not settle", a.Kind())
	return err
}

func serverMsg(id, userID, content string) models.Message {
	return models.Message{ID: id, ChannelID: "c1", UserID: userID, Content: content, CreatedAt: t0}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

// gate, fake bir isteği test serbest bırakana kadar bekletir.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) wait() {
	g.entered <- struct{}{}
	<-g.release
}

func (g *gate) awaitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never started")
	}
}
