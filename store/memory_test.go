package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/sensora/chatsync/contract"
)

func seedConversation(t *testing.T, m *Memory, convID string, members ...string) {
	t.Helper()
	ms := make([]contract.Member, 0, len(members))
	for _, id := range members {
		ms = append(ms, contract.Member{UserID: id, Username: "name-" + id})
	}
	_, err := m.CreateConversation(context.Background(), contract.Conversation{ID: convID, Group: true, AdminID: first(members)}, ms)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func appendMessages(t *testing.T, m *Memory, convID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := m.AppendMessage(context.Background(), convID, contract.Message{ID: id, SenderID: "a", Content: "msg " + id})
		if err != nil {
			t.Fatalf("AppendMessage(%s): %v", id, err)
		}
	}
}

func messageIDs(msgs []contract.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestMessagePageOrderingAndCursor(t *testing.T) {
	m := NewMemory()
	seedConversation(t, m, "c1", "a", "b")
	appendMessages(t, m, "c1", "m1", "m2", "m3", "m4", "m5")

	page, cur, err := m.MessagePage(context.Background(), "c1", 2, nil)
	if err != nil {
		t.Fatalf("MessagePage: %v", err)
	}
	if got, want := messageIDs(page), []string{"m5", "m4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("first page = %v; want %v", got, want)
	}

	page, cur, err = m.MessagePage(context.Background(), "c1", 2, cur)
	if err != nil {
		t.Fatalf("MessagePage: %v", err)
	}
	if got, want := messageIDs(page), []string{"m3", "m2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("second page = %v; want %v", got, want)
	}

	page, cur, err = m.MessagePage(context.Background(), "c1", 2, cur)
	if err != nil {
		t.Fatalf("MessagePage: %v", err)
	}
	if got, want := messageIDs(page), []string{"m1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("last page = %v; want %v", got, want)
	}

	page, _, err = m.MessagePage(context.Background(), "c1", 2, cur)
	if err != nil {
		t.Fatalf("MessagePage: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("page past the end = %v; want empty", messageIDs(page))
	}
}

func TestMessagePageDescendingTimestamps(t *testing.T) {
	m := NewMemory()
	seedConversation(t, m, "c1", "a")
	appendMessages(t, m, "c1", "m1", "m2", "m3")

	page, _, err := m.MessagePage(context.Background(), "c1", 10, nil)
	if err != nil {
		t.Fatalf("MessagePage: %v", err)
	}
	for i := 1; i < len(page); i++ {
		if !page[i].Timestamp.Before(page[i-1].Timestamp) {
			t.Errorf("timestamps not strictly descending at %d: %v, %v", i, page[i-1].Timestamp, page[i].Timestamp)
		}
	}
}

func TestSubscribeHeadEmitsOnAttachAndAppend(t *testing.T) {
	m := NewMemory()
	seedConversation(t, m, "c1", "a")
	appendMessages(t, m, "c1", "m1")

	var got []string
	unsubscribe, err := m.SubscribeHead(context.Background(), "c1", func(msg contract.Message) {
		got = append(got, msg.ID)
	})
	if err != nil {
		t.Fatalf("SubscribeHead: %v", err)
	}

	appendMessages(t, m, "c1", "m2")
	unsubscribe()
	appendMessages(t, m, "c1", "m3")

	if want := []string{"m1", "m2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("head emissions = %v; want %v", got, want)
	}
}

func TestIncrementReadCountsIsAdditive(t *testing.T) {
	m := NewMemory()
	seedConversation(t, m, "c1", "a", "b", "c")

	for i := 0; i < 3; i++ {
		if err := m.IncrementReadCounts(context.Background(), "c1", []string{"b", "c"}); err != nil {
			t.Fatalf("IncrementReadCounts: %v", err)
		}
	}
	if err := m.ResetReadCount(context.Background(), "c1", "b"); err != nil {
		t.Fatalf("ResetReadCount: %v", err)
	}

	conv, err := m.Conversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if want := map[string]int{"b": 0, "c": 3}; !reflect.DeepEqual(conv.ReadCount, want) {
		t.Errorf("readCount = %v; want %v", conv.ReadCount, want)
	}
}

func TestMembershipKeepsArrayAndDocsInSync(t *testing.T) {
	m := NewMemory()
	seedConversation(t, m, "c1", "a", "b")

	if err := m.PutMember(context.Background(), "c1", contract.Member{UserID: "c", Username: "name-c"}); err != nil {
		t.Fatalf("PutMember: %v", err)
	}
	if err := m.DeleteMember(context.Background(), "c1", "b"); err != nil {
		t.Fatalf("DeleteMember: %v", err)
	}

	conv, err := m.Conversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(conv.Members, want) {
		t.Errorf("members array = %v; want %v", conv.Members, want)
	}
	if _, err := m.Member(context.Background(), "c1", "b"); err != ErrMemberNotFound {
		t.Errorf("Member(b) error = %v; want ErrMemberNotFound", err)
	}
	if _, err := m.Member(context.Background(), "c1", "c"); err != nil {
		t.Errorf("Member(c) error = %v; want nil", err)
	}
}

func TestActiveViewers(t *testing.T) {
	m := NewMemory()
	seedConversation(t, m, "c1", "a", "b", "c")

	ctx := context.Background()
	if err := m.SetViewer(ctx, "c1", contract.Viewer{UserID: "a", Active: true}); err != nil {
		t.Fatalf("SetViewer: %v", err)
	}
	if err := m.SetViewer(ctx, "c1", contract.Viewer{UserID: "b", Active: false}); err != nil {
		t.Fatalf("SetViewer: %v", err)
	}
	if err := m.SetViewer(ctx, "c1", contract.Viewer{UserID: "c", Active: true}); err != nil {
		t.Fatalf("SetViewer: %v", err)
	}
	if err := m.DeleteViewer(ctx, "c1", "c"); err != nil {
		t.Fatalf("DeleteViewer: %v", err)
	}

	viewers, err := m.ActiveViewers(ctx, "c1")
	if err != nil {
		t.Fatalf("ActiveViewers: %v", err)
	}
	if want := []string{"a"}; !reflect.DeepEqual(viewers, want) {
		t.Errorf("active viewers = %v; want %v", viewers, want)
	}
}

func TestConversationNotFound(t *testing.T) {
	m := NewMemory()
	tests := []struct {
		name string
		call func() error
	}{
		{"Conversation", func() error { _, err := m.Conversation(context.Background(), "nope"); return err }},
		{"AppendMessage", func() error { return m.AppendMessage(context.Background(), "nope", contract.Message{ID: "m"}) }},
		{"RenameConversation", func() error { return m.RenameConversation(context.Background(), "nope", "x") }},
		{"DeleteConversation", func() error { return m.DeleteConversation(context.Background(), "nope") }},
		{"PutMember", func() error { return m.PutMember(context.Background(), "nope", contract.Member{UserID: "u"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != ErrConversationNotFound {
				t.Errorf("error = %v; want ErrConversationNotFound", err)
			}
		})
	}
}
