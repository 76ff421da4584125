// Package conversation coordinates one open conversation screen: the
// merged message feed, typing presence, viewer tracking, unread
// counters and group membership.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/feed"
	"github.com/sensora/chatsync/presence"
	"github.com/sensora/chatsync/session"
	"github.com/sensora/chatsync/store"
)

const defaultPageSize = 20

var (
	ErrEmptyDraft = errors.New("draft is empty")
	ErrNoSession  = errors.New("no signed-in user")
)

// Options tunes an Engine. The callbacks run on store subscription
// goroutines.
type Options struct {
	PageSize      int
	TypingTimeout time.Duration
	OnMessages    func([]contract.Message)
	OnTypingUsers func([]string)
}

// Engine is the sync engine behind one open conversation screen. It
// owns every listener attached for that screen; Close detaches all of
// them.
type Engine struct {
	store   store.Store
	session session.Session
	convID  string

	feed    *feed.Feed
	typing  *presence.Tracker
	viewers *presence.ViewerSet

	mu          sync.Mutex
	closed      bool
	unsubscribe []store.Unsubscribe
}

// Open attaches the engine to a conversation: starts the head and
// typing subscriptions, registers the user as an active viewer and
// loads the newest history page.
func Open(ctx context.Context, st store.Store, sess session.Session, convID string, opts Options) (*Engine, error) {
	if sess.UserID == "" {
		return nil, ErrNoSession
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	e := &Engine{
		store:   st,
		session: sess,
		convID:  convID,
	}
	e.feed = feed.New(st, convID, pageSize)
	if opts.OnMessages != nil {
		onMessages := opts.OnMessages
		e.feed.OnChange = func() { onMessages(e.feed.Messages()) }
	}
	e.typing = presence.NewTracker(ctx, st, convID, sess, opts.TypingTimeout)
	e.viewers = presence.NewViewerSet(st, convID, sess.UserID)

	if err := e.feed.Start(ctx); err != nil {
		return nil, err
	}
	if opts.OnTypingUsers != nil {
		unsubscribe, err := e.typing.Watch(ctx, opts.OnTypingUsers)
		if err != nil {
			e.feed.Stop()
			return nil, fmt.Errorf("subscribing to typing: %w", err)
		}
		e.unsubscribe = append(e.unsubscribe, unsubscribe)
	}
	if err := e.viewers.Enter(ctx); err != nil {
		e.detach()
		return nil, err
	}
	if err := e.feed.LoadInitial(ctx); err != nil {
		e.detach()
		return nil, err
	}
	return e, nil
}

// Send validates the draft and dispatches a regular message. The
// caller clears its draft regardless of the outcome, so a failure
// loses the drafted text; no rollback is attempted here.
func (e *Engine) Send(ctx context.Context, draft string) error {
	content := strings.TrimSpace(draft)
	if content == "" {
		return ErrEmptyDraft
	}
	if e.session.UserID == "" {
		return ErrNoSession
	}

	msg := contract.Message{
		ID:         uuid.NewString(),
		SenderID:   e.session.UserID,
		SenderName: e.session.Username,
		Content:    content,
	}
	if err := e.store.AppendMessage(ctx, e.convID, msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return e.bumpUnread(ctx)
}

// bumpUnread increments readCount for every member who is neither the
// sender nor actively viewing. Field-level increments keep concurrent
// senders from losing updates.
func (e *Engine) bumpUnread(ctx context.Context) error {
	conv, err := e.store.Conversation(ctx, e.convID)
	if err != nil {
		return fmt.Errorf("fetching members for unread counts: %w", err)
	}
	viewers, err := e.store.ActiveViewers(ctx, e.convID)
	if err != nil {
		return fmt.Errorf("fetching active viewers: %w", err)
	}

	viewing := make(map[string]bool, len(viewers))
	for _, id := range viewers {
		viewing[id] = true
	}
	var recipients []string
	for _, member := range conv.Members {
		if member == e.session.UserID || viewing[member] {
			continue
		}
		recipients = append(recipients, member)
	}
	if err := e.store.IncrementReadCounts(ctx, e.convID, recipients); err != nil {
		return fmt.Errorf("incrementing unread counts: %w", err)
	}
	return nil
}

// Keystroke reports draft input activity for the typing indicator.
func (e *Engine) Keystroke(ctx context.Context) error {
	return e.typing.Keystroke(ctx)
}

// Focus re-registers the user as an active viewer and zeroes their
// unread counter, mirroring a screen regaining focus.
func (e *Engine) Focus(ctx context.Context) error {
	return e.viewers.Enter(ctx)
}

// Blur clears the typing record immediately and drops the viewer
// record. Used on screen blur and app backgrounding.
func (e *Engine) Blur(ctx context.Context) error {
	return errors.Join(
		e.typing.Blur(ctx),
		e.viewers.Leave(ctx),
	)
}

// LoadMore requests the next history page; it is a no-op while a page
// load is in flight or when no more history exists.
func (e *Engine) LoadMore(ctx context.Context) error {
	return e.feed.LoadMore(ctx)
}

// Messages returns the merged list, newest first.
func (e *Engine) Messages() []contract.Message {
	return e.feed.Messages()
}

func (e *Engine) HasMore() bool {
	return e.feed.HasMore()
}

// Close detaches every listener and clears the user's presence. No
// listener survives the screen it was attached for.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	blurErr := e.Blur(ctx)
	e.detach()
	return blurErr
}

func (e *Engine) detach() {
	e.feed.Stop()
	e.mu.Lock()
	subs := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

// systemMessage appends a synthetic membership event entry. It flows
// through the same head subscription as regular messages.
func (e *Engine) systemMessage(ctx context.Context, text string) error {
	msg := contract.Message{
		ID:      uuid.NewString(),
		Content: text,
		System:  true,
	}
	if err := e.store.AppendMessage(ctx, e.convID, msg); err != nil {
		return fmt.Errorf("appending system message: %w", err)
	}
	return nil
}
