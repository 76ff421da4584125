// Package feed maintains the ordered in-memory message list of one
// open conversation, merging paged history with the live head
// subscription.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/store"
)

// Store is the slice of the document-store contract the feed consumes.
type Store interface {
	MessagePage(ctx context.Context, convID string, limit int, after store.Cursor) ([]contract.Message, store.Cursor, error)
	SubscribeHead(ctx context.Context, convID string, fn func(contract.Message)) (store.Unsubscribe, error)
}

// Feed holds the merged message list, newest first. The pagination and
// delta streams converge to the same list regardless of arrival order
// because the delta merge is idempotent by message id.
type Feed struct {
	store    Store
	convID   string
	pageSize int

	// OnChange, when set before Start, is invoked after every mutation
	// of the list. It runs on the mutating goroutine.
	OnChange func()

	mu          sync.Mutex
	messages    []contract.Message // newest first
	cursor      store.Cursor
	hasMore     bool
	loadingMore bool
	unsubscribe store.Unsubscribe
}

func New(st Store, convID string, pageSize int) *Feed {
	return &Feed{
		store:    st,
		convID:   convID,
		pageSize: pageSize,
	}
}

// LoadInitial fetches the newest page and replaces the history part of
// the list. A head emission that arrived before the page completes is
// kept, deduplicated by id.
func (f *Feed) LoadInitial(ctx context.Context) error {
	page, cursor, err := f.store.MessagePage(ctx, f.convID, f.pageSize, nil)
	if err != nil {
		return fmt.Errorf("loading initial page: %w", err)
	}

	f.mu.Lock()
	var kept []contract.Message
	for _, existing := range f.messages {
		if !containsID(page, existing.ID) {
			kept = append(kept, existing)
		} else {
			break
		}
	}
	f.messages = append(kept, page...)
	f.cursor = cursor
	f.hasMore = len(page) == f.pageSize
	f.mu.Unlock()

	f.notify()
	return nil
}

// LoadMore fetches the next page after the current cursor. It performs
// no store call while a page load is in flight, when there is no more
// history, or before LoadInitial has produced a cursor.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	if f.loadingMore || !f.hasMore || f.cursor == nil {
		f.mu.Unlock()
		return nil
	}
	f.loadingMore = true
	cursor := f.cursor
	f.mu.Unlock()

	page, next, err := f.store.MessagePage(ctx, f.convID, f.pageSize, cursor)

	f.mu.Lock()
	f.loadingMore = false
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("loading next page: %w", err)
	}
	f.messages = append(f.messages, page...)
	if next != nil {
		f.cursor = next
	}
	f.hasMore = len(page) == f.pageSize
	f.mu.Unlock()

	f.notify()
	return nil
}

// Start attaches the head subscription. Stop must be called when the
// screen unmounts or the conversation identity changes.
func (f *Feed) Start(ctx context.Context) error {
	unsubscribe, err := f.store.SubscribeHead(ctx, f.convID, f.mergeHead)
	if err != nil {
		return fmt.Errorf("subscribing to head: %w", err)
	}
	f.mu.Lock()
	f.unsubscribe = unsubscribe
	f.mu.Unlock()
	return nil
}

func (f *Feed) Stop() {
	f.mu.Lock()
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// mergeHead prepends the emitted message unless its id already sits at
// the head of the list.
func (f *Feed) mergeHead(msg contract.Message) {
	f.mu.Lock()
	if len(f.messages) > 0 && f.messages[0].ID == msg.ID {
		f.mu.Unlock()
		return
	}
	f.messages = append([]contract.Message{msg}, f.messages...)
	f.mu.Unlock()

	f.notify()
}

// Messages returns a copy of the list, newest first.
func (f *Feed) Messages() []contract.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contract.Message(nil), f.messages...)
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

func (f *Feed) notify() {
	if f.OnChange != nil {
		f.OnChange()
	}
}

func containsID(msgs []contract.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}
