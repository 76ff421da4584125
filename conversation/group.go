package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sensora/chatsync/contract"
)

var (
	ErrNotGroup  = errors.New("not a group conversation")
	ErrNotAdmin  = errors.New("only the group admin may do this")
	ErrKickSelf  = errors.New("cannot kick yourself, use Leave")
	ErrEmptyName = errors.New("group name is empty")
)

// Membership mutations are sequences of independent store calls with
// no cross-document atomicity; a step that fails leaves the aggregate
// as the earlier steps wrote it.

// AddMember adds a user to the group and announces it.
func (e *Engine) AddMember(ctx context.Context, userID, username string) error {
	if _, err := e.group(ctx); err != nil {
		return err
	}

	err := e.store.PutMember(ctx, e.convID, contract.Member{
		UserID:   userID,
		Username: username,
	})
	if err != nil {
		return fmt.Errorf("adding member %s: %w", userID, err)
	}
	return e.systemMessage(ctx, fmt.Sprintf("%s added %s to the group", e.session.Username, username))
}

// KickMember removes a member. Admin only; kicking yourself is
// rejected, use Leave.
func (e *Engine) KickMember(ctx context.Context, userID string) error {
	conv, err := e.group(ctx)
	if err != nil {
		return err
	}
	if e.session.UserID != conv.AdminID {
		return ErrNotAdmin
	}
	if userID == e.session.UserID {
		return ErrKickSelf
	}

	member, err := e.store.Member(ctx, e.convID, userID)
	if err != nil {
		return fmt.Errorf("fetching member %s: %w", userID, err)
	}
	if err := e.store.DeleteMember(ctx, e.convID, userID); err != nil {
		return fmt.Errorf("removing member %s: %w", userID, err)
	}
	return e.systemMessage(ctx, fmt.Sprintf("%s removed %s from the group", e.session.Username, member.Username))
}

// Leave removes the current user's membership, unread counter and
// viewer record, then announces the departure. The caller navigates
// away afterwards.
func (e *Engine) Leave(ctx context.Context) error {
	if _, err := e.group(ctx); err != nil {
		return err
	}

	if err := e.store.DeleteMember(ctx, e.convID, e.session.UserID); err != nil {
		return fmt.Errorf("removing own membership: %w", err)
	}
	if err := e.store.RemoveReadCount(ctx, e.convID, e.session.UserID); err != nil {
		return fmt.Errorf("removing own read count: %w", err)
	}
	if err := e.store.DeleteViewer(ctx, e.convID, e.session.UserID); err != nil {
		return fmt.Errorf("removing own viewer record: %w", err)
	}
	return e.systemMessage(ctx, fmt.Sprintf("%s left the group", e.session.Username))
}

// Rename updates the group name. Admin only. The announcement is
// suppressed when the trimmed name is unchanged.
func (e *Engine) Rename(ctx context.Context, newName string) error {
	trimmed := strings.TrimSpace(newName)
	if trimmed == "" {
		return ErrEmptyName
	}

	conv, err := e.group(ctx)
	if err != nil {
		return err
	}
	if e.session.UserID != conv.AdminID {
		return ErrNotAdmin
	}

	if err := e.store.RenameConversation(ctx, e.convID, trimmed); err != nil {
		return fmt.Errorf("renaming group: %w", err)
	}
	if trimmed == conv.Name {
		return nil
	}
	return e.systemMessage(ctx, fmt.Sprintf("%s renamed the group to %s", e.session.Username, trimmed))
}

// Delete removes the conversation aggregate root. Admin only,
// irreversible. Orphaned messages and members are not cleaned up here.
func (e *Engine) Delete(ctx context.Context) error {
	conv, err := e.group(ctx)
	if err != nil {
		return err
	}
	if e.session.UserID != conv.AdminID {
		return ErrNotAdmin
	}
	if err := e.store.DeleteConversation(ctx, e.convID); err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}
	return nil
}

func (e *Engine) group(ctx context.Context) (contract.Conversation, error) {
	conv, err := e.store.Conversation(ctx, e.convID)
	if err != nil {
		return contract.Conversation{}, fmt.Errorf("fetching conversation: %w", err)
	}
	if !conv.Group {
		return contract.Conversation{}, ErrNotGroup
	}
	return conv, nil
}
