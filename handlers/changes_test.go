package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/presence"
	"github.com/akinalp/mqvi-sync/store"
)

func dialFeed(t *testing.T, feed *ChangeFeed, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(feed.ServeWS))
	t.Cleanup(srv.Close)
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func readNotice(t *testing.T, conn *websocket.Conn) ChangeNotice {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var n ChangeNotice
	require.NoError(t, conn.ReadJSON(&n))
	return n
}

func waitClients(t *testing.T, feed *ChangeFeed, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return feed.Clients() == n }, 3*time.Second, 10*time.Millisecond)
}

func TestChangeFeed_PublishesStoreChanges(t *testing.T) {
	clk := clock.NewMock()
	messages := store.NewMessageStore(clk, zap.NewNop())
	channels := store.NewChannelStore(clk, zap.NewNop())
	ps := presence.New(presence.Options{Clock: clk})

	feed := NewChangeFeed(nil, zap.NewNop())
	stop := feed.Watch(messages, channels, ps)
	defer stop()
	defer feed.Close()

	conn, _, err := dialFeed(t, feed, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitClients(t, feed, 1)

	messages.Replace(store.ChannelScope("c1"), models.MessagePage{Messages: []models.Message{{ID: "m1", ChannelID: "c1"}}})
	n := readNotice(t, conn)
	assert.Equal(t, "changed", n.Type)
	assert.Equal(t, TopicMessages, n.Topic)
	assert.Equal(t, store.ChannelScope("c1").String(), n.ID)

	ps.SetPresence("u1", models.UserStatusOnline)
	n2 := readNotice(t, conn)
	assert.Equal(t, TopicPresence, n2.Topic)
	assert.Equal(t, "u1", n2.ID)
	assert.Greater(t, n2.Seq, n.Seq)

	stop()
	ps.SetPresence("u2", models.UserStatusOnline)
	feed.Publish(TopicConnection, "w1")
	n3 := readNotice(t, conn)
	assert.Equal(t, TopicConnection, n3.Topic, "unsubscribed stores no longer publish")
}

func TestChangeFeed_CheckOrigin(t *testing.T) {
	feed := NewChangeFeed([]string{"http://localhost:3030"}, zap.NewNop())
	defer feed.Close()

	_, resp, err := dialFeed(t, feed, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialFeed(t, feed, http.Header{"Origin": []string{"http://localhost:3030"}})
	require.NoError(t, err)
	conn.Close()
}

func TestChangeFeed_CloseDisconnectsViews(t *testing.T) {
	feed := NewChangeFeed(nil, zap.NewNop())
	conn, _, err := dialFeed(t, feed, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitClients(t, feed, 1)

	feed.Close()
	assert.Zero(t, feed.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	feed.Publish(TopicChannels, "c1")
}
