package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/store"
)

func TestSend_ConfirmReplacesProvisional(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", "u2", "hello"))

	g := newGate()
	h.msgRepo.sendFn = func(_ context.Context, _ string, d models.Draft) (*models.Message, error) {
		g.wait()
		m := serverMsg("m2", me, d.Content)
		m.Nonce = d.Nonce
		return &m, nil
	}

	a := h.svc.Send("c1", models.Draft{Content: "  hi there  "})
	assert.Equal(t, ActionPending, a.Status())
	require.True(t, IsTempID(a.Ref()))

	got := h.messages.Messages(store.ChannelScope("c1"))
	require.Len(t, got, 2)
	assert.Equal(t, a.Ref(), got[1].ID)
	assert.True(t, got[1].Provisional)
	assert.Equal(t, "hi there", got[1].Content)
	assert.NotEmpty(t, got[1].Nonce)

	g.awaitEntered(t)
	close(g.release)
	require.NoError(t, waitAction(t, a))
	assert.Equal(t, ActionSettled, a.Status())

	got = h.messages.Messages(store.ChannelScope("c1"))
	assert.Equal(t, []string{"m1", "m2"}, ids(got))
	assert.False(t, got[1].Provisional)
}

func TestSend_PushBeforeResponseYieldsSingleMessage(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", "u2", "hello"))

	g := newGate()
	h.msgRepo.sendFn = func(_ context.Context, _ string, d models.Draft) (*models.Message, error) {
		g.wait()
		m := serverMsg("m2", me, d.Content)
		return &m, nil
	}

	a := h.svc.Send("c1", models.Draft{Content: "same text"})
	g.awaitEntered(t)

	// Sunucu nonce'u yansıtmıyor: eşleşme yazar + içerik + zaman ile yapılır.
	res := h.messages.IngestCreated(serverMsg("m2", me, "same text"))
	assert.Equal(t, a.Ref(), res.AdoptedTempID)

	close(g.release)
	require.NoError(t, waitAction(t, a))

	assert.Equal(t, []string{"m1", "m2"}, ids(h.messages.Messages(store.ChannelScope("c1"))))
}

func TestSend_ResponseBeforePushYieldsSingleMessage(t *testing.T) {
	h := newHarness(t)
	h.loadChannel()
	h.msgRepo.sendFn = func(_ context.Context, _ string, d models.Draft) (*models.Message, error) {
		m := serverMsg("m2", me, d.Content)
		m.Nonce = d.Nonce
		return &m, nil
	}

	a := h.svc.Send("c1", models.Draft{Content: "x"})
	require.NoError(t, waitAction(t, a))

	res := h.messages.IngestCreated(serverMsg("m2", me, "x"))
	assert.True(t, res.Duplicate)
	assert.Equal(t, []string{"m2"}, ids(h.messages.Messages(store.ChannelScope("c1"))))
}

func TestSend_FailureRemovesProvisionalAndRefetchDoesNotReintroduce(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", "u2", "hello"))
	h.msgRepo.sendFn = func(context.Context, string, models.Draft) (*models.Message, error) {
		return nil, errors.New("dial tcp: network is unreachable")
	}

	a := h.svc.Send("c1", models.Draft{Content: "offline"})
	err := waitAction(t, a)
	require.Error(t, err)
	assert.Equal(t, ActionFailed, a.Status())
	assert.Equal(t, []string{"m1"}, ids(h.messages.Messages(store.ChannelScope("c1"))))

	h.loadChannel(serverMsg("m1", "u2", "hello"))
	assert.Equal(t, []string{"m1"}, ids(h.messages.Messages(store.ChannelScope("c1"))))
}

func TestSend_ReplyCountsParentOnceAcrossPush(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("p1", "u2", "parent"))
	h.messages.Replace(store.ThreadScope("p1"), models.MessagePage{})

	parent := "p1"
	g := newGate()
	h.msgRepo.sendFn = func(_ context.Context, _ string, d models.Draft) (*models.Message, error) {
		g.wait()
		m := serverMsg("r1", me, d.Content)
		m.ThreadParentID = &parent
		m.Nonce = d.Nonce
		return &m, nil
	}

	a := h.svc.Send("c1", models.Draft{Content: "reply", ThreadParentID: &parent})
	p, _ := h.messages.Get(store.ChannelScope("c1"), "p1")
	assert.Equal(t, 1, p.ReplyCount)

	g.awaitEntered(t)
	close(g.release)
	require.NoError(t, waitAction(t, a))

	pushed := serverMsg("r1", me, "reply")
	pushed.ThreadParentID = &parent
	h.messages.IngestCreated(pushed)

	p, _ = h.messages.Get(store.ChannelScope("c1"), "p1")
	assert.Equal(t, 1, p.ReplyCount)
	assert.Equal(t, []string{"r1"}, ids(h.messages.Messages(store.ThreadScope("p1"))))
}

func TestSend_InvalidDraftFailsWithoutRequest(t *testing.T) {
	h := newHarness(t)
	h.loadChannel()

	a := h.svc.Send("c1", models.Draft{Content: "   "})
	assert.Equal(t, ActionFailed, a.Status())
	assert.ErrorIs(t, a.Err(), pkg.ErrBadRequest)
	assert.Empty(t, h.msgRepo.Calls())
	assert.Empty(t, h.messages.Messages(store.ChannelScope("c1")))
}

func TestEdit_RollbackRestoresServerContent(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", me, "original"))
	h.msgRepo.updateFn = func(context.Context, string, string) (*models.Message, error) {
		return nil, &pkg.APIError{Status: http.StatusForbidden, Message: "nope"}
	}

	a := h.svc.Edit("m1", "changed")
	got, _ := h.messages.Get(store.ChannelScope("c1"), "m1")
	assert.Equal(t, "changed", got.Content)
	assert.NotNil(t, got.EditedAt)

	err := waitAction(t, a)
	assert.ErrorIs(t, err, pkg.ErrRejected)

	got, _ = h.messages.Get(store.ChannelScope("c1"), "m1")
	assert.Equal(t, "original", got.Content)
	assert.Nil(t, got.EditedAt)
}

func TestEdit_RepeatedFailuresDoNotDrift(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", me, "original"))
	h.msgRepo.updateFn = func(context.Context, string, string) (*models.Message, error) {
		return nil, &pkg.APIError{Status: http.StatusBadRequest}
	}

	for _, content := range []string{"one", "two", "three"} {
		_ = waitAction(t, h.svc.Edit("m1", content))
	}
	got, _ := h.messages.Get(store.ChannelScope("c1"), "m1")
	assert.Equal(t, "original", got.Content)
}

func TestEdit_CommitRecordsConfirmedContent(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", me, "original"))
	editedAt := t0.Add(time.Minute)
	h.msgRepo.updateFn = func(_ context.Context, id, content string) (*models.Message, error) {
		m := serverMsg(id, me, content)
		m.EditedAt = &editedAt
		return &m, nil
	}

	require.NoError(t, waitAction(t, h.svc.Edit("m1", "v2")))
	content, at, ok := h.messages.ConfirmedEdit("m1")
	require.True(t, ok)
	assert.Equal(t, "v2", content)
	assert.Equal(t, editedAt, *at)

	h.msgRepo.updateFn = func(context.Context, string, string) (*models.Message, error) {
		return nil, &pkg.APIError{Status: http.StatusForbidden}
	}
	_ = waitAction(t, h.svc.Edit("m1", "v3"))
	got, _ := h.messages.Get(store.ChannelScope("c1"), "m1")
	assert.Equal(t, "v2", got.Content)
}

func TestDelete_RollbackRestoresTombstonedParent(t *testing.T) {
	h := newHarness(t)
	parent := serverMsg("p1", me, "parent")
	parent.ReplyCount = 2
	h.loadChannel(serverMsg("m0", "u2", "before"), parent, serverMsg("m2", "u2", "after"))

	g := newGate()
	h.msgRepo.deleteFn = func(context.Context, string) error {
		g.wait()
		return &pkg.APIError{Status: http.StatusForbidden}
	}

	a := h.svc.Delete("p1")
	got, _ := h.messages.Get(store.ChannelScope("c1"), "p1")
	assert.True(t, got.IsDeleted())
	assert.Empty(t, got.Content)

	g.awaitEntered(t)
	close(g.release)
	require.Error(t, waitAction(t, a))

	got, _ = h.messages.Get(store.ChannelScope("c1"), "p1")
	assert.False(t, got.IsDeleted())
	assert.Equal(t, "parent", got.Content)
	assert.Equal(t, 2, got.ReplyCount)
}

func TestDelete_RollbackRestoresPurgedAtPosition(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m0", "u2", "a"), serverMsg("m1", me, "b"), serverMsg("m2", "u2", "c"))
	h.msgRepo.deleteFn = func(context.Context, string) error {
		return &pkg.APIError{Status: http.StatusInternalServerError}
	}

	require.Error(t, waitAction(t, h.svc.Delete("m1")))
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids(h.messages.Messages(store.ChannelScope("c1"))))
}

func TestDelete_NoRestoreWhenServerAlreadyDeleted(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", me, "b"))

	g := newGate()
	h.msgRepo.deleteFn = func(context.Context, string) error {
		g.wait()
		return &pkg.APIError{Status: http.StatusBadGateway}
	}

	a := h.svc.Delete("m1")
	g.awaitEntered(t)
	h.messages.MarkServerDeleted("m1")
	close(g.release)
	require.Error(t, waitAction(t, a))

	assert.Empty(t, h.messages.Messages(store.ChannelScope("c1")))
}

func TestDelete_NotFoundCountsAsDeleted(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", me, "b"))
	h.msgRepo.deleteFn = func(context.Context, string) error {
		return &pkg.APIError{Status: http.StatusNotFound}
	}

	require.NoError(t, waitAction(t, h.svc.Delete("m1")))
	assert.True(t, h.messages.IsServerDeleted("m1"))
	assert.Empty(t, h.messages.Messages(store.ChannelScope("c1")))
}

func TestDelete_UnsentMessageRejected(t *testing.T) {
	h := newHarness(t)
	a := h.svc.Delete(TempIDPrefix + "abc")
	assert.ErrorIs(t, a.Err(), pkg.ErrBadRequest)
	assert.Empty(t, h.msgRepo.Calls())
}

func TestReaction_RollbackOnlyTouchesOwnPair(t *testing.T) {
	h := newHarness(t)
	m := serverMsg("m1", "u2", "hi")
	m.Reactions = []models.Reaction{{UserID: "u2", Emoji: "👍"}}
	h.loadChannel(m)

	g := newGate()
	h.reactRepo.fn = func(context.Context, string, string, bool) error {
		g.wait()
		return &pkg.APIError{Status: http.StatusForbidden}
	}

	a := h.svc.AddReaction("m1", "👍")
	g.awaitEntered(t)
	// Başka bir kullanıcının eşzamanlı reaction'ı push ile geliyor.
	h.messages.SetReaction("m1", "u3", "👍", true)
	close(g.release)
	require.Error(t, waitAction(t, a))

	got, _ := h.messages.Get(store.ChannelScope("c1"), "m1")
	assert.ElementsMatch(t, []models.Reaction{
		{UserID: "u2", Emoji: "👍"},
		{UserID: "u3", Emoji: "👍"},
	}, got.Reactions)
}

func TestReaction_StaleFailureDoesNotOverrideLaterAction(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", "u2", "hi"))

	g := newGate()
	h.reactRepo.fn = func(_ context.Context, _, _ string, add bool) error {
		if add {
			g.wait()
			return &pkg.APIError{Status: http.StatusBadGateway}
		}
		return nil
	}

	add := h.svc.AddReaction("m1", "🎉")
	g.awaitEntered(t)
	remove := h.svc.RemoveReaction("m1", "🎉")
	require.NoError(t, waitAction(t, remove))

	// Sunucu önce add'i, sonra remove'u yansıtmış olsun.
	h.messages.SetReaction("m1", me, "🎉", false)
	close(g.release)
	require.Error(t, waitAction(t, add))

	got, _ := h.messages.Get(store.ChannelScope("c1"), "m1")
	assert.False(t, models.HasReaction(got.Reactions, me, "🎉"))
}

func TestReaction_FinalStateFollowsLastOperation(t *testing.T) {
	sequences := [][]bool{
		{true},
		{true, false},
		{false, true},
		{true, true, false, true},
		{true, false, false},
	}
	for _, seq := range sequences {
		h := newHarness(t)
		h.loadChannel(serverMsg("m1", "u2", "hi"))

		for _, add := range seq {
			var a *Action
			if add {
				a = h.svc.AddReaction("m1", "👍")
			} else {
				a = h.svc.RemoveReaction("m1", "👍")
			}
			require.NoError(t, waitAction(t, a))
			// Aynı değişikliğin push yansıması (tekrar teslim).
			h.messages.SetReaction("m1", me, "👍", add)
		}

		got, _ := h.messages.Get(store.ChannelScope("c1"), "m1")
		assert.Equal(t, seq[len(seq)-1], models.HasReaction(got.Reactions, me, "👍"), "sequence %v", seq)
	}
}

func TestReaction_InvalidEmoji(t *testing.T) {
	h := newHarness(t)
	a := h.svc.AddReaction("m1", " ")
	assert.ErrorIs(t, a.Err(), pkg.ErrBadRequest)
}

func TestMarkChannelRead_DoesNotRollBack(t *testing.T) {
	h := newHarness(t)
	h.loadChannel(serverMsg("m1", "u2", "a"), serverMsg("m2", "u2", "b"))
	h.readRepo.err = &pkg.APIError{Status: http.StatusInternalServerError}

	a := h.svc.MarkChannelRead("c1")
	ch, _ := h.channels.Channel("c1")
	assert.Equal(t, 0, ch.UnreadCount)
	assert.Equal(t, 0, ch.NotificationCount)
	require.NotNil(t, ch.LastReadMessageID)
	assert.Equal(t, "m2", *ch.LastReadMessageID)

	require.Error(t, waitAction(t, a))
	ch, _ = h.channels.Channel("c1")
	assert.Equal(t, 0, ch.UnreadCount)

	h.readRepo.mu.Lock()
	assert.Equal(t, "m2", h.readRepo.lastRead["c1"])
	h.readRepo.mu.Unlock()
}

func TestMarkThreadRead(t *testing.T) {
	h := newHarness(t)
	h.channels.TrackThread(models.ThreadSummary{ParentID: "p1", ChannelID: "c1", UnreadCount: 3})

	require.NoError(t, waitAction(t, h.svc.MarkThreadRead("p1")))
	th, _ := h.channels.Thread("p1")
	assert.Equal(t, 0, th.UnreadCount)
	assert.Equal(t, []string{"p1"}, h.readRepo.threads)
}

func TestSetStarred_RollbackRestoresPrevious(t *testing.T) {
	h := newHarness(t)
	h.chanRepo.starErr = &pkg.APIError{Status: http.StatusForbidden}

	a := h.svc.SetStarred("c1", true)
	ch, _ := h.channels.Channel("c1")
	assert.True(t, ch.IsStarred)

	require.Error(t, waitAction(t, a))
	ch, _ = h.channels.Channel("c1")
	assert.False(t, ch.IsStarred)
}

func TestAction_LookupAndShutdown(t *testing.T) {
	h := newHarness(t)
	h.loadChannel()
	h.msgRepo.sendFn = func(ctx context.Context, _ string, _ models.Draft) (*models.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	a := h.svc.Send("c1", models.Draft{Content: "pending forever"})
	found, ok := h.svc.Action(a.ID())
	require.True(t, ok)
	assert.Same(t, a, found)
	assert.Equal(t, ActionPending, found.View().Status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))

	assert.Equal(t, ActionFailed, a.Status())
	assert.Empty(t, h.messages.Messages(store.ChannelScope("c1")))

	after := h.svc.Send("c1", models.Draft{Content: "late"})
	assert.ErrorIs(t, after.Err(), pkg.ErrConnectionClosed)
}

func TestShutdown_ConcurrentActionsNeverOutliveShutdown(t *testing.T) {
	h := newHarness(t)

	var (
		mu      sync.Mutex
		actions []*Action
		callers sync.WaitGroup
	)
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			<-start
			for j := 0; j < 50; j++ {
				a := h.svc.MarkChannelRead("c1")
				mu.Lock()
				actions = append(actions, a)
				mu.Unlock()
			}
		}()
	}
	close(start)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))

	// Shutdown döndüğünde başlamış her aksiyon sonuçlanmış olmalı.
	mu.Lock()
	started := append([]*Action(nil), actions...)
	mu.Unlock()
	for _, a := range started {
		assert.NotEqual(t, ActionPending, a.Status(), "action %s still pending after shutdown", a.ID())
	}

	callers.Wait()
	late := h.svc.MarkChannelRead("c1")
	assert.ErrorIs(t, late.Err(), pkg.ErrConnectionClosed)
}
