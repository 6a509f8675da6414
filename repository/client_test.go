package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientOptions{BaseURL: srv.URL + "/api/", AccessToken: "tok"})
	require.NoError(t, err)
	return c, &reqs
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": json.RawMessage(raw)})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err)

	_, err = NewClient(ClientOptions{BaseURL: "localhost:9090"})
	assert.Error(t, err)

	c, err := NewClient(ClientOptions{BaseURL: "http://localhost:9090/api/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9090/api", c.baseURL)
}

func TestMessageRepo_Send(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusCreated, models.Message{ID: "m1", ChannelID: "c1", Content: "hi", Nonce: "n1"})
	})
	repo := NewHTTPMessageRepo(c)

	msg, err := repo.Send(context.Background(), "c1", models.Draft{Content: "hi", Nonce: "n1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "n1", msg.Nonce)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/channels/c1/messages", got.Path)
	assert.Equal(t, "Bearer tok", got.Auth)
	assert.JSONEq(t, `{"content":"hi","also_send_to_channel":false,"nonce":"n1"}`, got.Body)
}

func TestMessageRepo_ListChannelQuery(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, models.MessagePage{
			Messages: []models.Message{{ID: "m1"}, {ID: "m2"}},
			Cursor:   "m1",
			HasMore:  true,
		})
	})
	repo := NewHTTPMessageRepo(c)

	page, err := repo.ListChannel(context.Background(), "c1", "m9", 50)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, "m1", page.Cursor)
	assert.True(t, page.HasMore)

	assert.Equal(t, "before=m9&limit=50", (*reqs)[0].Query)
}

func TestMessageRepo_ListThreadAndFeedPaths(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, models.MessagePage{})
	})
	repo := NewHTTPMessageRepo(c)

	_, err := repo.ListThread(context.Background(), "p1", "", 20)
	require.NoError(t, err)
	_, err = repo.ListUnreadFeed(context.Background(), "w1", "cur", 0)
	require.NoError(t, err)

	assert.Equal(t, "/api/messages/p1/thread", (*reqs)[0].Path)
	assert.Equal(t, "limit=20", (*reqs)[0].Query)
	assert.Equal(t, "/api/workspaces/w1/unread", (*reqs)[1].Path)
	assert.Equal(t, "cursor=cur", (*reqs)[1].Query)
}

func TestMessageRepo_RejectedUpdate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusForbidden, "you can only edit your own messages")
	})
	repo := NewHTTPMessageRepo(c)

	_, err := repo.Update(context.Background(), "m1", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrRejected))
	assert.True(t, errors.Is(err, pkg.ErrForbidden))

	var apiErr *pkg.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "you can only edit your own messages", apiErr.Message)
}

func TestClient_ServerErrorIsNotRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	repo := NewHTTPMessageRepo(c)

	err := repo.Delete(context.Background(), "m1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, pkg.ErrRejected))
	assert.True(t, errors.Is(err, pkg.ErrInternal))
	assert.Contains(t, err.Error(), "upstream down")
}

func TestClient_RateLimitedIsNotRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusTooManyRequests, "slow down")
	})
	err := NewHTTPReactionRepo(c).Add(context.Background(), "m1", "👍")
	require.Error(t, err)
	assert.False(t, errors.Is(err, pkg.ErrRejected))
}

func TestReactionRepo_EscapesEmoji(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, nil)
	})
	repo := NewHTTPReactionRepo(c)

	require.NoError(t, repo.Add(context.Background(), "m1", "👍"))
	require.NoError(t, repo.Remove(context.Background(), "m1", "👍"))

	assert.Equal(t, http.MethodPut, (*reqs)[0].Method)
	assert.Equal(t, "/api/messages/m1/reactions/%F0%9F%91%8D", (*reqs)[0].Path)
	assert.Equal(t, http.MethodDelete, (*reqs)[1].Method)
}

func TestReadStateRepo(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeEnvelope(w, http.StatusOK, []models.UnreadInfo{{ChannelID: "c1", UnreadCount: 4}})
			return
		}
		writeEnvelope(w, http.StatusOK, nil)
	})
	repo := NewHTTPReadStateRepo(c)
	ctx := context.Background()

	require.NoError(t, repo.MarkChannelRead(ctx, "c1", "m7"))
	require.NoError(t, repo.MarkThreadRead(ctx, "p1"))
	unreads, err := repo.GetUnreadCounts(ctx, "w1")
	require.NoError(t, err)

	assert.Equal(t, "/api/channels/c1/read", (*reqs)[0].Path)
	assert.JSONEq(t, `{"message_id":"m7"}`, (*reqs)[0].Body)
	assert.Equal(t, "/api/threads/p1/read", (*reqs)[1].Path)
	assert.Equal(t, "/api/workspaces/w1/unread-counts", (*reqs)[2].Path)
	require.Len(t, unreads, 1)
	assert.Equal(t, 4, unreads[0].UnreadCount)
}

func TestChannelRepo(t *testing.T) {
	c, reqs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/workspaces/w1/channels":
			writeEnvelope(w, http.StatusOK, []models.ChannelSummary{{ID: "c1", Name: "general"}})
		case "/api/workspaces/w1/threads":
			writeEnvelope(w, http.StatusOK, []models.ThreadSummary{{ParentID: "p1", ChannelID: "c1", UnreadCount: 2}})
		default:
			writeEnvelope(w, http.StatusOK, nil)
		}
	})
	repo := NewHTTPChannelRepo(c)
	ctx := context.Background()

	channels, err := repo.List(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "w1", channels[0].WorkspaceID)

	threads, err := repo.ListThreads(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 2, threads[0].UnreadCount)

	require.NoError(t, repo.SetStarred(ctx, "c1", true))
	require.NoError(t, repo.SetStarred(ctx, "c1", false))
	assert.Equal(t, http.MethodPut, (*reqs)[2].Method)
	assert.Equal(t, http.MethodDelete, (*reqs)[3].Method)
	assert.Equal(t, "/api/channels/c1/star", (*reqs)[3].Path)
}

func TestClient_ContextCanceled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, nil)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewHTTPReadStateRepo(c).MarkThreadRead(ctx, "p1")
	assert.Error(t, err)
}
