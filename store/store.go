// Package store defines the document-store contract the sync engine is
// written against, together with its Firestore and in-memory
// implementations.
package store

import (
	"context"
	"errors"

	"github.com/sensora/chatsync/contract"
)

// Cursor is an opaque pagination pointer. A cursor produced by one
// implementation is only valid when passed back to the same one.
type Cursor any

// Unsubscribe detaches a snapshot listener. Safe to call once.
type Unsubscribe func()

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMemberNotFound       = errors.New("member not found")
)

type Store interface {
	Conversation(ctx context.Context, convID string) (contract.Conversation, error)
	CreateConversation(ctx context.Context, conv contract.Conversation, members []contract.Member) (string, error)
	DeleteConversation(ctx context.Context, convID string) error
	RenameConversation(ctx context.Context, convID, name string) error

	// MessagePage returns up to limit messages in descending timestamp
	// order. A nil cursor requests the newest page.
	MessagePage(ctx context.Context, convID string, limit int, after Cursor) ([]contract.Message, Cursor, error)
	// AppendMessage adds the message and updates the conversation
	// summary fields (lastMessage, lastSenderId, lastUpdated).
	AppendMessage(ctx context.Context, convID string, msg contract.Message) error
	// SubscribeHead invokes fn with the single most-recent message of
	// the conversation, once on attach and then on every change.
	SubscribeHead(ctx context.Context, convID string, fn func(contract.Message)) (Unsubscribe, error)

	Member(ctx context.Context, convID, userID string) (contract.Member, error)
	// PutMember and DeleteMember keep the member document and the
	// parent members array in sync within one call.
	PutMember(ctx context.Context, convID string, member contract.Member) error
	DeleteMember(ctx context.Context, convID, userID string) error

	SetTyping(ctx context.Context, convID string, status contract.TypingStatus) error
	// SubscribeTyping invokes fn with the full typing-status set of the
	// conversation, once on attach and then on every change.
	SubscribeTyping(ctx context.Context, convID string, fn func([]contract.TypingStatus)) (Unsubscribe, error)

	SetViewer(ctx context.Context, convID string, viewer contract.Viewer) error
	DeleteViewer(ctx context.Context, convID, userID string) error
	ActiveViewers(ctx context.Context, convID string) ([]string, error)

	ResetReadCount(ctx context.Context, convID, userID string) error
	// IncrementReadCounts adds 1 to readCount[u] for each user via
	// field-level increments, so concurrent senders cannot lose updates.
	IncrementReadCounts(ctx context.Context, convID string, userIDs []string) error
	RemoveReadCount(ctx context.Context, convID, userID string) error
}
