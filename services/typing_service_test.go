package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/pkg"
)

type fakeTypingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeTypingSender) SendTyping(workspaceID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, workspaceID+"/"+channelID)
	return nil
}

func TestNotifyTyping_ThrottledPerChannel(t *testing.T) {
	h := newHarness(t)
	sender := &fakeTypingSender{}
	svc := NewTypingService(sender, h.channels, 3*time.Second, h.clock, zap.NewNop())

	sent, err := svc.NotifyTyping("c1")
	require.NoError(t, err)
	assert.True(t, sent)

	h.clock.Add(time.Second)
	sent, _ = svc.NotifyTyping("c1")
	assert.False(t, sent)

	h.clock.Add(2 * time.Second)
	sent, _ = svc.NotifyTyping("c1")
	assert.True(t, sent)

	assert.Equal(t, []string{"w1/c1", "w1/c1"}, sender.sent)
}

func TestNotifyTyping_ResetAllowsImmediateFrame(t *testing.T) {
	h := newHarness(t)
	sender := &fakeTypingSender{}
	svc := NewTypingService(sender, h.channels, 0, h.clock, zap.NewNop())

	_, _ = svc.NotifyTyping("c1")
	svc.Reset("c1")
	sent, _ := svc.NotifyTyping("c1")
	assert.True(t, sent)
}

func TestNotifyTyping_Errors(t *testing.T) {
	h := newHarness(t)
	sender := &fakeTypingSender{err: errors.New("not connected")}
	svc := NewTypingService(sender, h.channels, time.Second, h.clock, zap.NewNop())

	_, err := svc.NotifyTyping("unknown")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = svc.NotifyTyping("c1")
	require.Error(t, err)

	// Başarısız gönderim window'u tüketmez.
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	sent, err := svc.NotifyTyping("c1")
	require.NoError(t, err)
	assert.True(t, sent)
}
