package rx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
)

type sequenceIDs struct {
	next int
}

func (p *sequenceIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

func newTestStore(t *testing.T, backend storage.Store) *Store {
	t.Helper()
	base := time.UnixMilli(1760000000000)
	ticks := 0
	store, err := NewStore(StoreConfig{
		Store:      backend,
		IDProvider: &sequenceIDs{},
		Clock: func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks) * time.Second)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing store: %v", err)
	}
	return store
}

func validRequest(userKey string) SubmissionRequest {
	return SubmissionRequest{
		UserKey:        userKey,
		FullName:       "Asha Rao",
		Phone:          "+1-555-0100",
		FileName:       "script.pdf",
		FileType:       "application/pdf",
		FileData:       []byte("%PDF-1.4 test"),
		NotifyOnUpdate: true,
	}
}

func TestSubmitPersistsPendingSubmission(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	submission, err := store.Submit(ctx, validRequest("user:42"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submission.Status != StatusPending {
		t.Fatalf("new submissions start pending, got %s", submission.Status)
	}
	if !strings.HasPrefix(submission.FileDataURL, "data:application/pdf;base64,") {
		t.Fatalf("file content must be inlined as a data URL, got %q", submission.FileDataURL)
	}
	if submission.CreatedAt != submission.UpdatedAt {
		t.Fatalf("timestamps must match at creation")
	}

	listed, err := store.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != submission.ID {
		t.Fatalf("expected the persisted submission, got %#v", listed)
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	request := validRequest("user:42")
	request.Phone = "  "

	if _, err := store.Submit(context.Background(), request); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestSubmitRejectsUnsupportedFileType(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()
	request := validRequest("user:42")
	request.FileType = "image/gif"

	if _, err := store.Submit(ctx, request); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	listed, err := store.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("rejected submissions must not persist, got %d", len(listed))
	}
}

func TestSubmitRejectsOversizedFile(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()
	request := validRequest("user:42")
	request.FileData = make([]byte, maxFileBytes+1)

	if _, err := store.Submit(ctx, request); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	listed, err := store.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("rejected submissions must not persist, got %d", len(listed))
	}
}

func TestSetStatusNotifiesOptedInSubmitter(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	submission, err := store.Submit(ctx, validRequest("user:42"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	updated, err := store.SetStatus(ctx, submission.ID, StatusUpdate{Status: StatusApproved})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated == nil || updated.Status != StatusApproved {
		t.Fatalf("expected approved submission, got %#v", updated)
	}
	if updated.UpdatedAt <= submission.UpdatedAt {
		t.Fatalf("updatedAt must advance on review")
	}

	inbox, err := store.Notifications(ctx, "user:42")
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(inbox))
	}
	if inbox[0].Title != "Prescription Approved" {
		t.Fatalf("unexpected title %q", inbox[0].Title)
	}
	if inbox[0].Message != "Your prescription status is now: Approved" {
		t.Fatalf("unexpected message %q", inbox[0].Message)
	}
	unread, err := store.UnreadCount(ctx, "user:42")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 1 {
		t.Fatalf("expected 1 unread, got %d", unread)
	}
}

func TestSetStatusAdminMessageBecomesNotificationBody(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	submission, err := store.Submit(ctx, validRequest("user:42"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	message := "Please upload a clearer photo of the prescription."
	if _, err := store.SetStatus(ctx, submission.ID, StatusUpdate{Status: StatusNeedsInfo, AdminMessage: &message}); err != nil {
		t.Fatalf("set status: %v", err)
	}

	inbox, err := store.Notifications(ctx, "user:42")
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Title != "Prescription Needs Info" {
		t.Fatalf("unexpected inbox %#v", inbox)
	}
	if inbox[0].Message != message {
		t.Fatalf("admin message must become the body, got %q", inbox[0].Message)
	}
}

func TestSetStatusSkipsNotificationWhenOptedOut(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()
	request := validRequest("user:42")
	request.NotifyOnUpdate = false

	submission, err := store.Submit(ctx, request)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := store.SetStatus(ctx, submission.ID, StatusUpdate{Status: StatusRejected}); err != nil {
		t.Fatalf("set status: %v", err)
	}

	unread, err := store.UnreadCount(ctx, "user:42")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("opted-out submitter must get no notification, got %d unread", unread)
	}
}

func TestSetStatusUnknownIDIsSilentNoOp(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	updated, err := store.SetStatus(context.Background(), "missing", StatusUpdate{Status: StatusApproved})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != nil {
		t.Fatalf("expected nil for an unknown id, got %#v", updated)
	}
}

func TestNotificationsAreIsolatedPerUserKey(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	if _, err := store.Notify(ctx, "user:42", Notification{Title: "For 42"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, err := store.Notify(ctx, "guest", Notification{Title: "For guest"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	inbox, err := store.Notifications(ctx, "user:42")
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Title != "For 42" {
		t.Fatalf("inboxes must not leak across user keys, got %#v", inbox)
	}
}

func TestMarkAllReadIsVisibleAcrossInstances(t *testing.T) {
	// Two Store instances over one backend behave like two browser tabs
	// sharing a profile.
	backend := storage.NewMemoryStore()
	tabA := newTestStore(t, backend)
	tabB := newTestStore(t, backend)
	ctx := context.Background()

	if _, err := tabA.Notify(ctx, "user:42", Notification{Title: "first"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, err := tabA.Notify(ctx, "user:42", Notification{Title: "second"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if err := tabB.MarkAllRead(ctx, "user:42"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}

	unread, err := tabA.UnreadCount(ctx, "user:42")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("read state must be shared through the backend, got %d unread", unread)
	}
}

func TestMarkReadSingleNotification(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	first, err := store.Notify(ctx, "user:42", Notification{Title: "first"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, err := store.Notify(ctx, "user:42", Notification{Title: "second"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if err := store.MarkRead(ctx, "user:42", first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err := store.UnreadCount(ctx, "user:42")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 1 {
		t.Fatalf("expected 1 unread left, got %d", unread)
	}
}

func TestClearNotificationsEmptiesInbox(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	if _, err := store.Notify(ctx, "user:42", Notification{Title: "first"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := store.ClearNotifications(ctx, "user:42"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	inbox, err := store.Notifications(ctx, "user:42")
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(inbox) != 0 {
		t.Fatalf("expected empty inbox, got %d", len(inbox))
	}
}

func TestInboxPrunesToNewestEntries(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < maxNotificationsPerUser+5; i++ {
		if _, err := store.Notify(ctx, "user:42", Notification{Title: fmt.Sprintf("n-%d", i)}); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	inbox, err := store.Notifications(ctx, "user:42")
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(inbox) != maxNotificationsPerUser {
		t.Fatalf("expected inbox capped at %d, got %d", maxNotificationsPerUser, len(inbox))
	}
	if inbox[0].Title != fmt.Sprintf("n-%d", maxNotificationsPerUser+4) {
		t.Fatalf("pruning must keep the newest entries, got %q first", inbox[0].Title)
	}
}

func TestListSubmissionsNewestFirst(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	first, err := store.Submit(ctx, validRequest("user:1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := store.Submit(ctx, validRequest("user:2"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	listed, err := store.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID || listed[1].ID != first.ID {
		t.Fatalf("expected newest first ordering, got %#v", listed)
	}
}

func TestSubmissionByID(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryStore())
	ctx := context.Background()

	submission, err := store.Submit(ctx, validRequest("user:42"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	found, err := store.SubmissionByID(ctx, submission.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found == nil || found.ID != submission.ID {
		t.Fatalf("expected the submission back, got %#v", found)
	}
	missing, err := store.SubmissionByID(ctx, "missing")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for an unknown id")
	}
}

func TestCorruptSubmissionsDocumentTreatedAsEmpty(t *testing.T) {
	backend := storage.NewMemoryStore()
	ctx := context.Background()
	if err := backend.Put(ctx, storage.DocSubmissions, []byte("{broken")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := newTestStore(t, backend)
	listed, err := store.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("corrupt document must not fail reads: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty list, got %d", len(listed))
	}
}
