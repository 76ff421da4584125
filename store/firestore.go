package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/log"
)

const (
	conversationCollection = "conversations"
	messageCollection      = "messages"
	memberCollection       = "members"
	typingCollection       = "typing"
	viewerCollection       = "viewers"

	timestampField   = "timestamp"
	activeField      = "active"
	membersField     = "members"
	nameField        = "name"
	lastMessageField = "lastMessage"
	lastSenderField  = "lastSenderId"
	lastUpdatedField = "lastUpdated"
	readCountField   = "readCount"
)

// Firestore implements Store on a Cloud Firestore database.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) conversation(convID string) *firestore.DocumentRef {
	return f.client.Collection(conversationCollection).Doc(convID)
}

func (f *Firestore) messages(convID string) *firestore.CollectionRef {
	return f.conversation(convID).Collection(messageCollection)
}

func (f *Firestore) Conversation(ctx context.Context, convID string) (contract.Conversation, error) {
	snap, err := f.conversation(convID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return contract.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return contract.Conversation{}, fmt.Errorf("fetching conversation %s: %w", convID, err)
	}

	var conv contract.Conversation
	if err := snap.DataTo(&conv); err != nil {
		return contract.Conversation{}, fmt.Errorf("unmarshalling conversation %s: %w", convID, err)
	}
	conv.ID = snap.Ref.ID
	return conv, nil
}

func (f *Firestore) CreateConversation(ctx context.Context, conv contract.Conversation, members []contract.Member) (string, error) {
	convID := conv.ID
	if convID == "" {
		convID = uuid.NewString()
	}
	if _, err := f.conversation(convID).Set(ctx, conv); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	for _, m := range members {
		if err := f.PutMember(ctx, convID, m); err != nil {
			return "", err
		}
	}
	return convID, nil
}

// DeleteConversation removes the aggregate root only; subcollections
// are left behind.
func (f *Firestore) DeleteConversation(ctx context.Context, convID string) error {
	if _, err := f.conversation(convID).Delete(ctx); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", convID, err)
	}
	return nil
}

func (f *Firestore) RenameConversation(ctx context.Context, convID, name string) error {
	_, err := f.conversation(convID).Update(ctx, []firestore.Update{
		{Path: nameField, Value: name},
	})
	if err != nil {
		return fmt.Errorf("renaming conversation %s: %w", convID, err)
	}
	return nil
}

func (f *Firestore) MessagePage(ctx context.Context, convID string, limit int, after Cursor) ([]contract.Message, Cursor, error) {
	q := f.messages(convID).OrderBy(timestampField, firestore.Desc).Limit(limit)
	if after != nil {
		snap, ok := after.(*firestore.DocumentSnapshot)
		if !ok {
			return nil, nil, fmt.Errorf("foreign cursor type %T", after)
		}
		q = q.StartAfter(snap)
	}

	var (
		page []contract.Message
		last *firestore.DocumentSnapshot
	)
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("fetching message page: %w", err)
		}
		var msg contract.Message
		if err := snap.DataTo(&msg); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling message %s: %w", snap.Ref.ID, err)
		}
		page = append(page, msg)
		last = snap
	}
	if last == nil {
		return page, nil, nil
	}
	return page, last, nil
}

func (f *Firestore) AppendMessage(ctx context.Context, convID string, msg contract.Message) error {
	if _, err := f.messages(convID).Doc(msg.ID).Set(ctx, msg); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	_, err := f.conversation(convID).Update(ctx, []firestore.Update{
		{Path: lastMessageField, Value: msg.Content},
		{Path: lastSenderField, Value: msg.SenderID},
		{Path: lastUpdatedField, Value: firestore.ServerTimestamp},
	})
	if err != nil {
		return fmt.Errorf("updating conversation summary: %w", err)
	}
	return nil
}

func (f *Firestore) SubscribeHead(ctx context.Context, convID string, fn func(contract.Message)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := f.messages(convID).OrderBy(timestampField, firestore.Desc).Limit(1).Snapshots(ctx)

	go func() {
		logger := log.FromContext(ctx)
		for {
			qs, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					logger.Error("head subscription closed", "conversationID", convID, "errorMsg", err.Error())
				}
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				logger.Error("reading head snapshot", "conversationID", convID, "errorMsg", err.Error())
				continue
			}
			for _, snap := range docs {
				var msg contract.Message
				if err := snap.DataTo(&msg); err != nil {
					logger.Error("unmarshalling head message", "conversationID", convID, "errorMsg", err.Error())
					continue
				}
				fn(msg)
			}
		}
	}()

	return func() {
		cancel()
		it.Stop()
	}, nil
}

func (f *Firestore) Member(ctx context.Context, convID, userID string) (contract.Member, error) {
	snap, err := f.conversation(convID).Collection(memberCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return contract.Member{}, ErrMemberNotFound
	}
	if err != nil {
		return contract.Member{}, fmt.Errorf("fetching member %s: %w", userID, err)
	}
	var m contract.Member
	if err := snap.DataTo(&m); err != nil {
		return contract.Member{}, fmt.Errorf("unmarshalling member %s: %w", userID, err)
	}
	return m, nil
}

func (f *Firestore) PutMember(ctx context.Context, convID string, member contract.Member) error {
	ref := f.conversation(convID).Collection(memberCollection).Doc(member.UserID)
	if _, err := ref.Set(ctx, member); err != nil {
		return fmt.Errorf("writing member %s: %w", member.UserID, err)
	}
	_, err := f.conversation(convID).Update(ctx, []firestore.Update{
		{Path: membersField, Value: firestore.ArrayUnion(member.UserID)},
	})
	if err != nil {
		return fmt.Errorf("adding %s to members array: %w", member.UserID, err)
	}
	return nil
}

func (f *Firestore) DeleteMember(ctx context.Context, convID, userID string) error {
	ref := f.conversation(convID).Collection(memberCollection).Doc(userID)
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("deleting member %s: %w", userID, err)
	}
	_, err := f.conversation(convID).Update(ctx, []firestore.Update{
		{Path: membersField, Value: firestore.ArrayRemove(userID)},
	})
	if err != nil {
		return fmt.Errorf("removing %s from members array: %w", userID, err)
	}
	return nil
}

func (f *Firestore) SetTyping(ctx context.Context, convID string, s contract.TypingStatus) error {
	ref := f.conversation(convID).Collection(typingCollection).Doc(s.UserID)
	if _, err := ref.Set(ctx, s); err != nil {
		return fmt.Errorf("writing typing status: %w", err)
	}
	return nil
}

func (f *Firestore) SubscribeTyping(ctx context.Context, convID string, fn func([]contract.TypingStatus)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := f.conversation(convID).Collection(typingCollection).Snapshots(ctx)

	go func() {
		logger := log.FromContext(ctx)
		for {
			qs, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					logger.Error("typing subscription closed", "conversationID", convID, "errorMsg", err.Error())
				}
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				logger.Error("reading typing snapshot", "conversationID", convID, "errorMsg", err.Error())
				continue
			}
			statuses := make([]contract.TypingStatus, 0, len(docs))
			for _, snap := range docs {
				var s contract.TypingStatus
				if err := snap.DataTo(&s); err != nil {
					logger.Error("unmarshalling typing status", "conversationID", convID, "errorMsg", err.Error())
					continue
				}
				statuses = append(statuses, s)
			}
			fn(statuses)
		}
	}()

	return func() {
		cancel()
		it.Stop()
	}, nil
}

func (f *Firestore) SetViewer(ctx context.Context, convID string, v contract.Viewer) error {
	ref := f.conversation(convID).Collection(viewerCollection).Doc(v.UserID)
	if _, err := ref.Set(ctx, v); err != nil {
		return fmt.Errorf("writing viewer: %w", err)
	}
	return nil
}

func (f *Firestore) DeleteViewer(ctx context.Context, convID, userID string) error {
	ref := f.conversation(convID).Collection(viewerCollection).Doc(userID)
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("deleting viewer %s: %w", userID, err)
	}
	return nil
}

func (f *Firestore) ActiveViewers(ctx context.Context, convID string) ([]string, error) {
	it := f.conversation(convID).Collection(viewerCollection).
		Where(activeField, "==", true).
		Documents(ctx)
	defer it.Stop()

	var viewers []string
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching active viewers: %w", err)
		}
		viewers = append(viewers, snap.Ref.ID)
	}
	return viewers, nil
}

func (f *Firestore) ResetReadCount(ctx context.Context, convID, userID string) error {
	_, err := f.conversation(convID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{readCountField, userID}, Value: 0},
	})
	if err != nil {
		return fmt.Errorf("resetting read count for %s: %w", userID, err)
	}
	return nil
}

func (f *Firestore) IncrementReadCounts(ctx context.Context, convID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(userIDs))
	for _, id := range userIDs {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{readCountField, id},
			Value:     firestore.Increment(1),
		})
	}
	if _, err := f.conversation(convID).Update(ctx, updates); err != nil {
		return fmt.Errorf("incrementing read counts: %w", err)
	}
	return nil
}

func (f *Firestore) RemoveReadCount(ctx context.Context, convID, userID string) error {
	_, err := f.conversation(convID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{readCountField, userID}, Value: firestore.Delete},
	})
	if err != nil {
		return fmt.Errorf("removing read count for %s: %w", userID, err)
	}
	return nil
}
