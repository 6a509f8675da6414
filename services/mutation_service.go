package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/pkg/cache"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/store"
)

// actionRetention, sonuçlanan aksiyonların Action(id) ile sorgulanabildiği süre.
const actionRetention = 10 * time.Minute

// MutationService, kullanıcı aksiyonlarının optimistic koordinatörü.
//
// Her method optimistic yazmayı senkron olarak uygular, isteği arka planda
// gönderir ve pending bir *Action döner. Hata durumunda yazma op'un
// snapshot'ı ile tamamen geri alınır (MarkRead hariç).
type MutationService interface {
	Send(channelID string, draft models.Draft) *Action
	Edit(messageID, content string) *Action
	Delete(messageID string) *Action
	AddReaction(messageID, emoji string) *Action
	RemoveReaction(messageID, emoji string) *Action
	MarkChannelRead(channelID string) *Action
	MarkThreadRead(parentID string) *Action
	SetStarred(channelID string, starred bool) *Action
	Action(id string) (*Action, bool)
	Shutdown(ctx context.Context) error
}

type mutationService struct {
	env     *mutationEnv
	actions *cache.TTLCache[string, *Action]

	ctx    context.Context
	cancel context.CancelFunc

	// mu, closed kontrolü ile wg.Add'i Shutdown'daki wg.Wait'e karşı sıralar.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewMutationService, constructor.
// userID: optimistic mesajların yazarı ve reaction'ların sahibi olan mevcut kullanıcı.
func NewMutationService(
	messageRepo repository.MessageRepository,
	reactionRepo repository.ReactionRepository,
	readStateRepo repository.ReadStateRepository,
	channelRepo repository.ChannelRepository,
	messages *store.MessageStore,
	channels *store.ChannelStore,
	userID string,
	clk clock.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) MutationService {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &mutationService{
		env: &mutationEnv{
			messageRepo:   messageRepo,
			reactionRepo:  reactionRepo,
			readStateRepo: readStateRepo,
			channelRepo:   channelRepo,
			messages:      messages,
			channels:      channels,
			userID:        userID,
			clock:         clk,
			gens:          newGenerations(),
		},
		actions: cache.New[string, *Action](clk, actionRetention),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("mutations"),
		metrics: m,
	}
}

func (s *mutationService) Send(channelID string, draft models.Draft) *Action {
	return s.run(&sendOp{env: s.env, channelID: channelID, draft: draft})
}

func (s *mutationService) Edit(messageID, content string) *Action {
	return s.run(&editOp{env: s.env, messageID: messageID, content: content})
}

func (s *mutationService) Delete(messageID string) *Action {
	return s.run(&deleteOp{env: s.env, messageID: messageID})
}

func (s *mutationService) AddReaction(messageID, emoji string) *Action {
	return s.run(&reactionOp{env: s.env, messageID: messageID, emoji: emoji, add: true})
}

func (s *mutationService) RemoveReaction(messageID, emoji string) *Action {
	return s.run(&reactionOp{env: s.env, messageID: messageID, emoji: emoji, add: false})
}

func (s *mutationService) MarkChannelRead(channelID string) *Action {
	return s.run(&markReadOp{env: s.env, targetID: channelID})
}

func (s *mutationService) MarkThreadRead(parentID string) *Action {
	return s.run(&markReadOp{env: s.env, targetID: parentID, thread: true})
}

func (s *mutationService) SetStarred(channelID string, starred bool) *Action {
	return s.run(&starOp{env: s.env, channelID: channelID, starred: starred})
}

// Action, ID'si verilen aksiyonu döner (retention süresi içindeyse).
func (s *mutationService) Action(id string) (*Action, bool) {
	a, _, ok := s.actions.Get(id)
	return a, ok
}

// Shutdown, yeni istekleri iptal eder ve uçuştaki isteklerin
// sonuçlanmasını bekler. İptal edilen istekler rollback ile sonuçlanır.
func (s *mutationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run, op'u uygular ve isteği arka planda başlatır.
func (s *mutationService) run(o op) *Action {
	now := s.env.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		a := newAction(uuid.NewString(), o.kind(), "", now)
		a.finish(pkg.ErrConnectionClosed)
		return a
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if err := o.apply(); err != nil {
		s.wg.Done()
		a := newAction(uuid.NewString(), o.kind(), o.ref(), now)
		a.finish(err)
		s.metrics.MutationFinished(o.kind(), string(ActionFailed))
		s.logger.Debug("mutation rejected locally", zap.String("action", o.kind()), zap.Error(err))
		return a
	}

	a := newAction(uuid.NewString(), o.kind(), o.ref(), now)
	s.actions.Sweep()
	s.actions.Set(a.ID(), a)

	go func() {
		defer s.wg.Done()
		err := o.execute(s.ctx)
		if err != nil {
			o.rollback(err)
			s.metrics.Rollback(o.kind())
			s.metrics.MutationFinished(o.kind(), string(ActionFailed))
			s.logFailure(o, err)
		} else {
			o.commit()
			s.metrics.MutationFinished(o.kind(), string(ActionSettled))
		}
		a.finish(err)
	}()
	return a
}

func (s *mutationService) logFailure(o op, err error) {
	fields := []zap.Field{
		zap.String("action", o.kind()),
		zap.String("ref", o.ref()),
		zap.Error(err),
	}
	if errors.Is(err, pkg.ErrRejected) {
		s.logger.Warn("mutation rejected by server", fields...)
		return
	}
	s.logger.Warn("mutation failed", fields...)
}
