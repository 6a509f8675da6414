package services

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/pkg/ratelimit"
	"github.com/akinalp/mqvi-sync/store"
)

// DefaultTypingThrottle, aynı kanal için iki typing frame'i arasındaki minimum süre.
const DefaultTypingThrottle = 3 * time.Second

// TypingSender, typing frame'ini workspace'in push bağlantısına yazar.
// ws.Hub bu interface'i implement eder.
type TypingSender interface {
	SendTyping(workspaceID, channelID string) error
}

// TypingService, giden "yazıyor" bildirimlerini yönetir.
//
// View katmanı her tuş vuruşunda NotifyTyping çağırabilir; sunucuya kanal
// başına throttle window'u içinde en fazla bir frame gider. Mesaj
// gönderildiğinde Reset ile window sıfırlanır.
type TypingService interface {
	NotifyTyping(channelID string) (bool, error)
	Reset(channelID string)
	Run(ctx context.Context) error
}

type typingService struct {
	sender   TypingSender
	channels *store.ChannelStore
	limiter  *ratelimit.Limiter
	clock    clock.Clock
	throttle time.Duration
	logger   *zap.Logger
}

// NewTypingService, constructor.
func NewTypingService(
	sender TypingSender,
	channels *store.ChannelStore,
	throttle time.Duration,
	clk clock.Clock,
	logger *zap.Logger,
) TypingService {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if throttle <= 0 {
		throttle = DefaultTypingThrottle
	}
	return &typingService{
		sender:   sender,
		channels: channels,
		limiter:  ratelimit.New(clk, 1, throttle),
		clock:    clk,
		throttle: throttle,
		logger:   logger.Named("typing"),
	}
}

// NotifyTyping, throttle izin veriyorsa typing frame'i gönderir.
// Frame gönderildiyse true döner.
func (s *typingService) NotifyTyping(channelID string) (bool, error) {
	ch, ok := s.channels.Channel(channelID)
	if !ok {
		return false, fmt.Errorf("%w: unknown channel %s", pkg.ErrNotFound, channelID)
	}
	if !s.limiter.Allow(channelID) {
		return false, nil
	}
	if err := s.sender.SendTyping(ch.WorkspaceID, channelID); err != nil {
		// Gönderilemeyen frame window'u tüketmesin.
		s.limiter.Reset(channelID)
		return false, err
	}
	return true, nil
}

func (s *typingService) Reset(channelID string) {
	s.limiter.Reset(channelID)
}

// Run, süresi dolmuş throttle kayıtlarını periyodik olarak temizler.
func (s *typingService) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.throttle * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.limiter.Cleanup(); n > 0 {
				s.logger.Debug("typing throttle cleanup", zap.Int("removed", n))
			}
		}
	}
}
