package presence

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/store"
)

func TestEnterRegistersViewerAndResetsCount(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	_, err := m.CreateConversation(ctx, contract.Conversation{ID: "c1", Members: []string{"u1", "u2"}}, nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := m.IncrementReadCounts(ctx, "c1", []string{"u1"}); err != nil {
		t.Fatalf("IncrementReadCounts: %v", err)
	}

	v := NewViewerSet(m, "c1", "u1")
	if err := v.Enter(ctx); err != nil {
		t.Fatalf("Enter: %v", err)
	}

	viewers, err := m.ActiveViewers(ctx, "c1")
	if err != nil {
		t.Fatalf("ActiveViewers: %v", err)
	}
	if want := []string{"u1"}; !reflect.DeepEqual(viewers, want) {
		t.Errorf("active viewers = %v; want %v", viewers, want)
	}

	conv, err := m.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if conv.ReadCount["u1"] != 0 {
		t.Errorf("readCount[u1] = %d; want 0 after focus", conv.ReadCount["u1"])
	}
}

func TestLeaveDeletesViewer(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateConversation(ctx, contract.Conversation{ID: "c1"}, nil); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	v := NewViewerSet(m, "c1", "u1")
	if err := v.Enter(ctx); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := v.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	viewers, err := m.ActiveViewers(ctx, "c1")
	if err != nil {
		t.Fatalf("ActiveViewers: %v", err)
	}
	if len(viewers) != 0 {
		t.Errorf("active viewers = %v; want none", viewers)
	}
}

// viewerStoreWithBrokenReset fails only the counter reset.
type viewerStoreWithBrokenReset struct {
	*store.Memory
}

func (s viewerStoreWithBrokenReset) ResetReadCount(_ context.Context, _, _ string) error {
	return errors.New("backend unavailable")
}

func TestEnterSurvivesResetFailure(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateConversation(ctx, contract.Conversation{ID: "c1"}, nil); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	v := NewViewerSet(viewerStoreWithBrokenReset{m}, "c1", "u1")
	if err := v.Enter(ctx); err != nil {
		t.Fatalf("Enter = %v; want nil, a failed reset is logged and non-fatal", err)
	}

	viewers, err := m.ActiveViewers(ctx, "c1")
	if err != nil {
		t.Fatalf("ActiveViewers: %v", err)
	}
	if want := []string{"u1"}; !reflect.DeepEqual(viewers, want) {
		t.Errorf("active viewers = %v; want %v", viewers, want)
	}
}
