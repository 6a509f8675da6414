package services

import (
	"context"
	"sync"
	"time"
)

// ActionStatus, view katmanına gösterilen aksiyon durumu.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSettled ActionStatus = "settled"
	ActionFailed  ActionStatus = "failed"
)

// Action kind sabitleri: metrics label'ı ve bridge cevabı olarak kullanılır.
const (
	KindSend           = "send"
	KindEdit           = "edit"
	KindDelete         = "delete"
	KindAddReaction    = "reaction_add"
	KindRemoveReaction = "reaction_remove"
	KindMarkRead       = "mark_read"
	KindMarkThreadRead = "mark_thread_read"
	KindStar           = "star"
)

// Action, bir kullanıcı aksiyonunun sonucunu takip eden handle.
//
// Dispatcher method'ları Action'ı hemen (pending olarak) döner; optimistic
// yazma o anda uygulanmıştır. İstek tamamlandığında durum settled veya
// failed olur ve Done() kanalı kapanır.
type Action struct {
	id        string
	kind      string
	ref       string
	createdAt time.Time

	mu     sync.Mutex
	status ActionStatus
	err    error
	done   chan struct{}
}

// ActionView, Action'ın JSON'a yazılabilir anlık görüntüsü.
type ActionView struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Ref       string       `json:"ref,omitempty"`
	Status    ActionStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func newAction(id, kind, ref string, now time.Time) *Action {
	return &Action{
		id:        id,
		kind:      kind,
		ref:       ref,
		createdAt: now,
		status:    ActionPending,
		done:      make(chan struct{}),
	}
}

func (a *Action) ID() string   { return a.id }
func (a *Action) Kind() string { return a.kind }

// Ref, aksiyonun hedefi: send için geçici mesaj ID'si, diğerleri için
// mesaj veya kanal ID'si.
func (a *Action) Ref() string { return a.ref }

func (a *Action) Status() ActionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err, aksiyon failed ise sebebini döner.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done, aksiyon sonuçlandığında kapanan kanal.
func (a *Action) Done() <-chan struct{} {
	return a.done
}

// Wait, aksiyon sonuçlanana veya ctx iptal edilene kadar bekler.
// Aksiyon failed olduysa hatasını döner.
func (a *Action) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Action) View() ActionView {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := ActionView{
		ID:        a.id,
		Kind:      a.kind,
		Ref:       a.ref,
		Status:    a.status,
		CreatedAt: a.createdAt,
	}
	if a.err != nil {
		v.Error = a.err.Error()
	}
	return v
}

// finish, aksiyonu bir kez sonuçlandırır; sonraki çağrılar yok sayılır.
func (a *Action) finish(err error) {
	a.mu.Lock()
	if a.status != ActionPending {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.status = ActionFailed
		a.err = err
	} else {
		a.status = ActionSettled
	}
	a.mu.Unlock()
	close(a.done)
}
