// Package presence tracks typing indicators and the set of members
// actively viewing a conversation.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/log"
	"github.com/sensora/chatsync/session"
	"github.com/sensora/chatsync/store"
)

const DefaultTypingTimeout = 3 * time.Second

// TypingStore is the slice of the document-store contract the tracker
// consumes.
type TypingStore interface {
	SetTyping(ctx context.Context, convID string, status contract.TypingStatus) error
	SubscribeTyping(ctx context.Context, convID string, fn func([]contract.TypingStatus)) (store.Unsubscribe, error)
}

// Tracker runs the per-user typing state machine: Idle to Typing on
// the first keystroke, back to Idle when the inactivity timer fires or
// the screen blurs. One timer, cancelled and restarted per keystroke.
type Tracker struct {
	ctx     context.Context // screen lifetime, used by the timer write
	store   TypingStore
	convID  string
	session session.Session
	timeout time.Duration

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
}

func NewTracker(ctx context.Context, st TypingStore, convID string, sess session.Session, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Tracker{
		ctx:     ctx,
		store:   st,
		convID:  convID,
		session: sess,
		timeout: timeout,
	}
}

// Keystroke records input activity. The first keystroke after idle
// writes typing=true; every keystroke restarts the inactivity timer.
func (t *Tracker) Keystroke(ctx context.Context) error {
	t.mu.Lock()
	wasTyping := t.typing
	t.typing = true
	if t.timer == nil {
		t.timer = time.AfterFunc(t.timeout, t.expire)
	} else {
		t.timer.Stop()
		t.timer.Reset(t.timeout)
	}
	t.mu.Unlock()

	if wasTyping {
		return nil
	}
	return t.store.SetTyping(ctx, t.convID, contract.TypingStatus{
		UserID:   t.session.UserID,
		Username: t.session.Username,
		Typing:   true,
	})
}

// Blur clears the typing record immediately, bypassing the timer. Used
// on screen blur and app backgrounding.
func (t *Tracker) Blur(ctx context.Context) error {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	wasTyping := t.typing
	t.typing = false
	t.mu.Unlock()

	if !wasTyping {
		return nil
	}
	return t.setIdle(ctx)
}

// expire fires when the inactivity timer elapses with no keystroke.
func (t *Tracker) expire() {
	t.mu.Lock()
	if !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.mu.Unlock()

	if err := t.setIdle(t.ctx); err != nil {
		log.FromContext(t.ctx).Error("clearing typing status",
			"conversationID", t.convID, "errorMsg", err.Error())
	}
}

func (t *Tracker) setIdle(ctx context.Context) error {
	return t.store.SetTyping(ctx, t.convID, contract.TypingStatus{
		UserID:   t.session.UserID,
		Username: t.session.Username,
		Typing:   false,
	})
}

// Watch subscribes to the conversation's typing records and projects
// them to the display names of other members currently typing.
func (t *Tracker) Watch(ctx context.Context, fn func(names []string)) (store.Unsubscribe, error) {
	self := t.session.UserID
	return t.store.SubscribeTyping(ctx, t.convID, func(statuses []contract.TypingStatus) {
		names := make([]string, 0, len(statuses))
		for _, s := range statuses {
			if s.UserID == self || !s.Typing || s.Username == "" {
				continue
			}
			names = append(names, s.Username)
		}
		sort.Strings(names)
		fn(names)
	})
}
