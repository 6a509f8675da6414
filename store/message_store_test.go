package store

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() (*MessageStore, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(t0)
	return NewMessageStore(clk, zap.NewNop()), clk
}

func msg(id, channelID, content string, offset time.Duration) models.Message {
	return models.Message{
		ID:        id,
		ChannelID: channelID,
		UserID:    "u-other",
		Content:   content,
		CreatedAt: t0.Add(offset),
	}
}

func reply(id, parentID string, offset time.Duration) models.Message {
	m := msg(id, "c1", "reply "+id, offset)
	m.ThreadParentID = &parentID
	return m
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestUpsert_NotMaterializedIsNoop(t *testing.T) {
	s, _ := newTestStore()
	assert.False(t, s.Upsert(ChannelScope("c1"), msg("m1", "c1", "hi", 0)))
	assert.False(t, s.Materialized(ChannelScope("c1")))
}

func TestUpsert_AppendsUnknownAndMergesKnown(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "a", 0)}, Cursor: "m1", HasMore: true})

	require.True(t, s.Upsert(key, msg("m2", "c1", "b", time.Second)))
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Messages(key)))

	withReplies := msg("m1", "c1", "a", 0)
	withReplies.ReplyCount = 2
	withReplies.Reactions = []models.Reaction{{UserID: "u2", Emoji: "👍"}}
	require.True(t, s.Upsert(key, withReplies))

	edited := msg("m1", "c1", "a (edited)", 0)
	require.True(t, s.Upsert(key, edited))

	got, ok := s.Get(key, "m1")
	require.True(t, ok)
	assert.Equal(t, "a (edited)", got.Content)
	assert.Equal(t, 2, got.ReplyCount, "reply count preserved when incoming is empty")
	assert.Len(t, got.Reactions, 1, "reactions preserved when incoming is empty")
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Messages(key)), "no duplicate")

	state, ok := s.State(key)
	require.True(t, ok)
	assert.Equal(t, "m1", state.Cursor)
	assert.True(t, state.HasMore)
}

func TestPatch_MissingIDIsNoop(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "a", 0)}})

	content := "b"
	assert.False(t, s.Patch(key, "nope", models.MessagePatch{Content: &content}))
	assert.Equal(t, []string{"m1"}, ids(s.Messages(key)))

	assert.True(t, s.Patch(key, "m1", models.MessagePatch{Content: &content}))
	got, _ := s.Get(key, "m1")
	assert.Equal(t, "b", got.Content)
}

func TestRemove_TombstoneVersusPurge(t *testing.T) {
	s, clk := newTestStore()
	key := ChannelScope("c1")
	parent := msg("m1", "c1", "has replies", 0)
	parent.ReplyCount = 2
	parent.Attachments = []models.Attachment{{ID: "a1", Filename: "x.png"}}
	s.Replace(key, models.MessagePage{Messages: []models.Message{parent, msg("m2", "c1", "lonely", time.Second)}})

	clk.Add(time.Minute)
	assert.Equal(t, RemoveTombstoned, s.Remove(key, "m1"))
	got, ok := s.Get(key, "m1")
	require.True(t, ok)
	assert.Empty(t, got.Content)
	assert.Empty(t, got.Attachments)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, t0.Add(time.Minute), *got.DeletedAt)

	assert.Equal(t, RemovePurged, s.Remove(key, "m2"))
	_, ok = s.Get(key, "m2")
	assert.False(t, ok)

	assert.Equal(t, RemoveMissing, s.Remove(key, "m2"))
}

func TestPages_FetchedCopyWinsAndIDsStayUnique(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{
		Messages: []models.Message{msg("m3", "c1", "three", 3*time.Second), msg("m4", "c1", "four", 4*time.Second)},
		Cursor:   "m3",
		HasMore:  true,
	})

	// Older page overlapping with m3.
	older := models.MessagePage{
		Messages: []models.Message{msg("m1", "c1", "one", time.Second), msg("m2", "c1", "two", 2*time.Second), msg("m3", "c1", "three (server)", 3*time.Second)},
		Cursor:   "m1",
		HasMore:  false,
	}
	require.True(t, s.PrependPage(key, older))

	all := s.Messages(key)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(all))
	assert.Equal(t, "three (server)", all[2].Content)

	state, _ := s.State(key)
	assert.Equal(t, "m1", state.Cursor)
	assert.False(t, state.HasMore)
	assert.Equal(t, 2, state.Pages)
}

func TestAppendPage_KeepsProvisionalNewest(t *testing.T) {
	s, _ := newTestStore()
	key := ThreadScope("p1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{reply("r1", "p1", time.Second)}, Cursor: "r1", HasMore: true})

	tmp := reply("tmp-1", "p1", 10*time.Second)
	s.InsertProvisional(tmp)

	require.True(t, s.AppendPage(key, models.MessagePage{
		Messages: []models.Message{reply("r1", "p1", time.Second), reply("r2", "p1", 2*time.Second)},
		Cursor:   "r2",
	}))
	assert.Equal(t, []string{"r1", "r2", "tmp-1"}, ids(s.Messages(key)))
}

func TestExtend_NotMaterializedIsNoop(t *testing.T) {
	s, _ := newTestStore()
	assert.False(t, s.AppendPage(ThreadScope("p1"), models.MessagePage{Messages: []models.Message{reply("r1", "p1", 0)}}))
	assert.False(t, s.PrependPage(ChannelScope("c1"), models.MessagePage{}))
}

func TestApplyReply_CountsEachChildOnce(t *testing.T) {
	s, _ := newTestStore()
	s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{msg("p1", "c1", "parent", 0)}})

	r := reply("r1", "p1", time.Minute)
	r.UserID = "u2"
	assert.True(t, s.ApplyReply(r))
	assert.False(t, s.ApplyReply(r))

	parent, _ := s.Get(ChannelScope("c1"), "p1")
	assert.Equal(t, 1, parent.ReplyCount)
	require.NotNil(t, parent.LastReplyAt)
	assert.Equal(t, t0.Add(time.Minute), *parent.LastReplyAt)
	assert.Equal(t, []string{"u2"}, parent.ThreadParticipants)
}

func TestApplyReply_SeededFromThreadFetch(t *testing.T) {
	s, _ := newTestStore()
	parent := msg("p1", "c1", "parent", 0)
	parent.ReplyCount = 1
	s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{parent}})
	s.Replace(ThreadScope("p1"), models.MessagePage{Messages: []models.Message{reply("r1", "p1", time.Second)}})

	assert.False(t, s.ApplyReply(reply("r1", "p1", time.Second)), "already reflected in server count")
	got, _ := s.Get(ChannelScope("c1"), "p1")
	assert.Equal(t, 1, got.ReplyCount)
}

func TestProvisional_SendThenPush(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{})

	tmp := msg("tmp-1", "c1", "hello", 0)
	tmp.UserID = "me"
	s.InsertProvisional(tmp)

	server := msg("s1", "c1", "hello", 500*time.Millisecond)
	server.UserID = "me"
	s.ConfirmProvisional("tmp-1", server)

	res := s.IngestCreated(server)
	assert.True(t, res.Duplicate)
	assert.Equal(t, []string{"s1"}, ids(s.Messages(key)))
}

func TestProvisional_PushThenConfirm(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{})

	tmp := msg("tmp-1", "c1", "hello", 0)
	tmp.UserID = "me"
	s.InsertProvisional(tmp)

	server := msg("s1", "c1", "hello", time.Second)
	server.UserID = "me"
	res := s.IngestCreated(server)
	assert.Equal(t, "tmp-1", res.AdoptedTempID)

	s.ConfirmProvisional("tmp-1", server)
	all := s.Messages(key)
	assert.Equal(t, []string{"s1"}, ids(all))
	assert.False(t, all[0].Provisional)
}

func TestProvisional_NonceBeatsHeuristic(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{})

	first := msg("tmp-1", "c1", "ok", 0)
	first.UserID, first.Nonce = "me", "n1"
	second := msg("tmp-2", "c1", "ok", time.Second)
	second.UserID, second.Nonce = "me", "n2"
	s.InsertProvisional(first)
	s.InsertProvisional(second)

	server := msg("s2", "c1", "ok", 2*time.Second)
	server.UserID, server.Nonce = "me", "n2"
	tempID, ok := s.AdoptProvisional(server)
	require.True(t, ok)
	assert.Equal(t, "tmp-2", tempID)
	assert.Equal(t, []string{"tmp-1", "s2"}, ids(s.Messages(key)))
}

func TestProvisional_HeuristicRespectsWindow(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{})

	tmp := msg("tmp-1", "c1", "hello", 0)
	tmp.UserID = "me"
	s.InsertProvisional(tmp)

	late := msg("s1", "c1", "hello", ProvisionalMatchWindow+time.Second)
	late.UserID = "me"
	_, ok := s.AdoptProvisional(late)
	assert.False(t, ok)

	other := msg("s2", "c1", "hello", time.Second)
	other.UserID = "someone-else"
	_, ok = s.AdoptProvisional(other)
	assert.False(t, ok)
}

func TestProvisional_ReplyCountedOnceInEitherOrder(t *testing.T) {
	for _, pushFirst := range []bool{true, false} {
		s, _ := newTestStore()
		s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{msg("p1", "c1", "parent", 0)}})
		s.Replace(ThreadScope("p1"), models.MessagePage{})

		tmp := reply("tmp-1", "p1", time.Second)
		tmp.UserID = "me"
		s.InsertProvisional(tmp)

		server := reply("s1", "p1", 2*time.Second)
		server.UserID, server.Content = "me", tmp.Content

		if pushFirst {
			s.IngestCreated(server)
			s.ConfirmProvisional("tmp-1", server)
		} else {
			s.ConfirmProvisional("tmp-1", server)
			s.IngestCreated(server)
		}

		parent, _ := s.Get(ChannelScope("c1"), "p1")
		assert.Equal(t, 1, parent.ReplyCount, "pushFirst=%v", pushFirst)
		assert.Equal(t, []string{"s1"}, ids(s.Messages(ThreadScope("p1"))), "pushFirst=%v", pushFirst)
		assert.True(t, s.ReplyCounted("p1", "s1"))
		assert.False(t, s.ReplyCounted("p1", "tmp-1"))
	}
}

func TestDiscardProvisional_RevertsCountedReply(t *testing.T) {
	s, _ := newTestStore()
	s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{msg("p1", "c1", "parent", 0)}})
	s.Replace(ThreadScope("p1"), models.MessagePage{})

	s.InsertProvisional(reply("tmp-1", "p1", time.Second))
	parent, _ := s.Get(ChannelScope("c1"), "p1")
	require.Equal(t, 1, parent.ReplyCount)

	assert.True(t, s.DiscardProvisional("tmp-1"))
	parent, _ = s.Get(ChannelScope("c1"), "p1")
	assert.Equal(t, 0, parent.ReplyCount)
	assert.Empty(t, s.Messages(ThreadScope("p1")))
}

func TestReplace_DoesNotReintroduceDiscardedProvisional(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "a", 0)}})

	s.InsertProvisional(msg("tmp-1", "c1", "offline", time.Second))
	s.DiscardProvisional("tmp-1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "a", 0)}})

	assert.Equal(t, []string{"m1"}, ids(s.Messages(key)))
}

func TestReplaceSince_KeepsLiveWritesAfterMark(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{
		msg("m1", "c1", "a", 0), msg("m2", "c1", "b", time.Second),
	}})
	local := "before mark"
	s.PatchMessage("m1", models.MessagePatch{Content: &local})

	mark := s.Mark()
	s.IngestCreated(msg("m3", "c1", "c", 2*time.Second))
	s.SetReaction("m1", "u2", "👍", true)
	s.RemoveMessage("m2")

	// Sunucu snapshot'ı mark'tan önce alındı: m3 yok, m2 hâlâ var.
	s.ReplaceSince(key, models.MessagePage{Messages: []models.Message{
		msg("m1", "c1", "server", 0), msg("m2", "c1", "b", time.Second),
	}}, mark)

	got := s.Messages(key)
	require.Equal(t, []string{"m1", "m3"}, ids(got))
	assert.True(t, models.HasReaction(got[0].Reactions, "u2", "👍"))

	// Mark'tan önceki yazmalar taze sayfanın altında kalır.
	s.ReplaceSince(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "server", 0)}}, s.Mark())
	got = s.Messages(key)
	require.Equal(t, []string{"m1"}, ids(got))
	assert.Equal(t, "server", got[0].Content)
}

func TestReplaceSince_FirstLoadKeepsMessageCreatedDuringFetch(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")

	mark := s.Mark()
	res := s.IngestCreated(msg("m2", "c1", "b", time.Second))
	assert.Empty(t, res.Scopes, "scope is not materialized yet")
	s.IngestCreated(msg("x1", "c9", "elsewhere", time.Second))

	s.ReplaceSince(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "a", 0)}}, mark)
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Messages(key)))
}

func TestReplaceSince_SkipsLiveMessagesOutsideFetchedRange(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")

	mark := s.Mark()
	s.IngestCreated(msg("old", "c1", "from an unloaded page", -time.Hour))

	s.ReplaceSince(key, models.MessagePage{
		Messages: []models.Message{msg("m1", "c1", "a", 0)},
		Cursor:   "m1",
		HasMore:  true,
	}, mark)
	assert.Equal(t, []string{"m1"}, ids(s.Messages(key)))
}

func TestRemoveMessage_RestoreAtOriginalPosition(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{
		msg("m1", "c1", "a", 0), msg("m2", "c1", "b", time.Second), msg("m3", "c1", "c", 2*time.Second),
	}})

	removals := s.RemoveMessage("m2")
	require.Len(t, removals, 1)
	assert.Equal(t, "m1", removals[0].AfterID)
	assert.Equal(t, []string{"m1", "m3"}, ids(s.Messages(key)))

	s.RestoreMessage(removals)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Messages(key)))
	got, _ := s.Get(key, "m2")
	assert.Equal(t, "b", got.Content)
}

func TestRestoreMessage_ReplacesTombstone(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	parent := msg("p1", "c1", "parent", 0)
	parent.ReplyCount = 3
	s.Replace(key, models.MessagePage{Messages: []models.Message{parent}})

	removals := s.RemoveMessage("p1")
	require.Len(t, removals, 1)
	assert.True(t, removals[0].Tombstoned)

	s.RestoreMessage(removals)
	got, _ := s.Get(key, "p1")
	assert.Equal(t, "parent", got.Content)
	assert.Nil(t, got.DeletedAt)
	assert.Equal(t, 3, got.ReplyCount)
}

func TestSetReaction_OnlyTouchesPair(t *testing.T) {
	s, _ := newTestStore()
	m := msg("m1", "c1", "a", 0)
	m.Reactions = []models.Reaction{{UserID: "u2", Emoji: "🔥"}}
	s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{m}})

	was, found := s.SetReaction("m1", "me", "🔥", true)
	assert.True(t, found)
	assert.False(t, was)

	was, _ = s.SetReaction("m1", "me", "🔥", true)
	assert.True(t, was, "adding a present pair is a no-op")

	got, _ := s.Get(ChannelScope("c1"), "m1")
	assert.Len(t, got.Reactions, 2)

	_, found = s.SetReaction("missing", "me", "🔥", true)
	assert.False(t, found)
}

func TestServerDeleted_FilteredFromFetch(t *testing.T) {
	s, _ := newTestStore()
	key := ChannelScope("c1")
	s.MarkServerDeleted("m2")
	s.Replace(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "a", 0), msg("m2", "c1", "stale", time.Second)}})
	assert.Equal(t, []string{"m1"}, ids(s.Messages(key)))
	assert.True(t, s.IsServerDeleted("m2"))
}

func TestConfirmedEdit_RecordedFromFetch(t *testing.T) {
	s, _ := newTestStore()
	s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{msg("m1", "c1", "server text", 0)}})

	content, _, ok := s.ConfirmedEdit("m1")
	require.True(t, ok)
	assert.Equal(t, "server text", content)

	edited := t0.Add(time.Hour)
	s.RecordConfirmedEdit("m1", "newer", &edited)
	content, at, _ := s.ConfirmedEdit("m1")
	assert.Equal(t, "newer", content)
	assert.Equal(t, edited, *at)
}

func TestEvictAndSubscribe(t *testing.T) {
	s, _ := newTestStore()
	var got []ScopeKey
	unsubscribe := s.Subscribe(func(k ScopeKey) { got = append(got, k) })

	key := ThreadScope("p1")
	s.Replace(key, models.MessagePage{})
	s.Evict(key)
	assert.False(t, s.Materialized(key))
	assert.False(t, s.Upsert(key, reply("r1", "p1", 0)), "writes after eviction are discarded")

	unsubscribe()
	s.Replace(key, models.MessagePage{})
	assert.Equal(t, []ScopeKey{key, key}, got)
}

func TestFind_PrefersChannelScope(t *testing.T) {
	s, _ := newTestStore()
	r := reply("r1", "p1", 0)
	r.AlsoSendToChannel = true
	s.Replace(ThreadScope("p1"), models.MessagePage{Messages: []models.Message{r}})
	s.Replace(ChannelScope("c1"), models.MessagePage{Messages: []models.Message{r}})

	_, key, ok := s.Find("r1")
	require.True(t, ok)
	assert.Equal(t, ChannelScope("c1"), key)
	assert.Equal(t, []ScopeKey{ChannelScope("c1"), ThreadScope("p1")}, s.Locate("r1"))
}

func TestRevertEdit_RestoresLastConfirmedContent(t *testing.T) {
	s, clk := newTestStore()
	key := ChannelScope("c1")
	s.Replace(key, models.MessagePage{Messages: []models.Message{msg("m1", "c1", "original", 0)}})

	edited := "optimistic"
	now := clk.Now()
	s.PatchMessage("m1", models.MessagePatch{Content: &edited, EditedAt: &now})

	require.True(t, s.RevertEdit("m1"))
	got, _ := s.Get(key, "m1")
	assert.Equal(t, "original", got.Content)
	assert.Nil(t, got.EditedAt)

	assert.False(t, s.RevertEdit("missing"))
}
