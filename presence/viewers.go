package presence

import (
	"context"
	"fmt"

	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/log"
)

// ViewerStore is the slice of the document-store contract the viewer
// set consumes.
type ViewerStore interface {
	SetViewer(ctx context.Context, convID string, viewer contract.Viewer) error
	DeleteViewer(ctx context.Context, convID, userID string) error
	ResetReadCount(ctx context.Context, convID, userID string) error
}

// ViewerSet maintains the current user's viewer record for one
// conversation screen.
type ViewerSet struct {
	store  ViewerStore
	convID string
	userID string
}

func NewViewerSet(st ViewerStore, convID, userID string) *ViewerSet {
	return &ViewerSet{store: st, convID: convID, userID: userID}
}

// Enter marks the user as actively viewing and zeroes their unread
// counter. A failed counter reset is logged and left stale; the
// conversation stays usable.
func (v *ViewerSet) Enter(ctx context.Context) error {
	err := v.store.SetViewer(ctx, v.convID, contract.Viewer{
		UserID: v.userID,
		Active: true,
	})
	if err != nil {
		return fmt.Errorf("writing viewer record: %w", err)
	}

	if err := v.store.ResetReadCount(ctx, v.convID, v.userID); err != nil {
		log.FromContext(ctx).Error("resetting read count",
			"conversationID", v.convID, "userID", v.userID, "errorMsg", err.Error())
	}
	return nil
}

// Leave deletes the viewer record on screen blur or unmount.
func (v *ViewerSet) Leave(ctx context.Context) error {
	if err := v.store.DeleteViewer(ctx, v.convID, v.userID); err != nil {
		return fmt.Errorf("deleting viewer record: %w", err)
	}
	return nil
}
