package rx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/events"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
	"go.uber.org/zap"
)

const (
	maxFileBytes = 5 << 20
	// Inboxes are pruned to this many newest notifications per user key so
	// the document cannot grow without bound.
	maxNotificationsPerUser = 200
)

var allowedFileTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/webp":      {},
}

var (
	// ErrUnsupportedFileType rejects files outside the PDF/PNG/JPEG/WEBP allow-list.
	ErrUnsupportedFileType = errors.New("rx: file type must be PDF, PNG, JPEG, or WEBP")
	// ErrFileTooLarge rejects files over 5 MiB.
	ErrFileTooLarge = errors.New("rx: file exceeds the 5 MiB limit")
	// ErrMissingField rejects submissions without the required contact fields.
	ErrMissingField = errors.New("rx: full name, phone, and file are required")
)

// IDProvider issues unique identifiers for submissions and notifications.
type IDProvider interface {
	NewID() (string, error)
}

type StoreConfig struct {
	Store      storage.Store
	Bus        *events.Bus
	IDProvider IDProvider
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Store simulates the prescription review workflow entirely client-side.
// It holds no in-memory state: every operation reads the persisted documents
// and writes them back, so separate instances sharing one backend behave
// like separate tabs sharing a browser profile.
type Store struct {
	store  storage.Store
	bus    *events.Bus
	ids    IDProvider
	logger *zap.Logger
	clock  func() time.Time
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Store == nil {
		return nil, errors.New("rx: document store is required")
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{store: cfg.Store, bus: cfg.Bus, ids: ids, logger: logger, clock: clock}, nil
}

// SubmissionRequest carries the upload form fields and file content.
type SubmissionRequest struct {
	UserKey        string
	FullName       string
	Phone          string
	Notes          string
	FileName       string
	FileType       string
	FileData       []byte
	NotifyOnUpdate bool
}

// Submit validates the upload, inlines the file content, and persists a new
// PENDING submission. Validation failures reject before any state mutation.
func (s *Store) Submit(ctx context.Context, request SubmissionRequest) (Submission, error) {
	if strings.TrimSpace(request.FullName) == "" ||
		strings.TrimSpace(request.Phone) == "" ||
		len(request.FileData) == 0 {
		return Submission{}, ErrMissingField
	}
	fileType := strings.ToLower(strings.TrimSpace(request.FileType))
	if _, ok := allowedFileTypes[fileType]; !ok {
		return Submission{}, fmt.Errorf("%w: got %q", ErrUnsupportedFileType, request.FileType)
	}
	if len(request.FileData) > maxFileBytes {
		return Submission{}, fmt.Errorf("%w: got %d bytes", ErrFileTooLarge, len(request.FileData))
	}

	id, err := s.ids.NewID()
	if err != nil {
		return Submission{}, fmt.Errorf("rx: generate id: %w", err)
	}

	userKey := request.UserKey
	if userKey == "" {
		userKey = "guest"
	}
	now := s.nowMillis()
	submission := Submission{
		ID:             id,
		UserKey:        userKey,
		FullName:       strings.TrimSpace(request.FullName),
		Phone:          strings.TrimSpace(request.Phone),
		Notes:          request.Notes,
		FileName:       request.FileName,
		FileType:       fileType,
		FileDataURL:    encodeDataURL(fileType, request.FileData),
		NotifyOnUpdate: request.NotifyOnUpdate,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	submissions, err := s.readSubmissions(ctx)
	if err != nil {
		return Submission{}, err
	}
	submissions = append([]Submission{submission}, submissions...)
	if err := s.writeSubmissions(ctx, submissions); err != nil {
		return Submission{}, err
	}
	s.publish()
	return submission, nil
}

// ListSubmissions returns every submission across all users, newest first.
// The admin console is trusted with the full list; there is no per-admin
// filtering in this single-pharmacy deployment.
func (s *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	submissions, err := s.readSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].CreatedAt > submissions[j].CreatedAt
	})
	return submissions, nil
}

// SubmissionByID returns the submission, or nil when unknown.
func (s *Store) SubmissionByID(ctx context.Context, id string) (*Submission, error) {
	submissions, err := s.readSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range submissions {
		if submissions[i].ID == id {
			return &submissions[i], nil
		}
	}
	return nil, nil
}

// StatusUpdate is the admin review action. A nil AdminMessage keeps the
// previous message; an empty Status keeps the previous status.
type StatusUpdate struct {
	Status       Status
	AdminMessage *string
}

// SetStatus applies a review decision. An unknown id is a silent no-op
// returning nil; callers guard against acting on stale ids. When the
// submission asked for updates, a notification is synthesized for its owner.
func (s *Store) SetStatus(ctx context.Context, submissionID string, update StatusUpdate) (*Submission, error) {
	submissions, err := s.readSubmissions(ctx)
	if err != nil {
		return nil, err
	}

	index := -1
	for i := range submissions {
		if submissions[i].ID == submissionID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, nil
	}

	updated := submissions[index]
	if update.Status != "" {
		updated.Status = update.Status
	}
	if update.AdminMessage != nil {
		updated.AdminMessage = *update.AdminMessage
	}
	updated.UpdatedAt = s.nowMillis()
	submissions[index] = updated

	if err := s.writeSubmissions(ctx, submissions); err != nil {
		return nil, err
	}

	if updated.NotifyOnUpdate && updated.UserKey != "" {
		pretty := updated.Status.PrettyTitle()
		message := updated.AdminMessage
		if message == "" {
			message = "Your prescription status is now: " + pretty
		}
		_, err := s.Notify(ctx, updated.UserKey, Notification{
			Title:   "Prescription " + pretty,
			Message: message,
			Meta:    map[string]any{"submissionId": updated.ID, "status": string(updated.Status)},
		})
		if err != nil {
			s.logger.Warn("notification synthesis failed",
				zap.String("submission_id", updated.ID), zap.Error(err))
		}
	}

	s.publish()
	return &updated, nil
}

// Notify appends a notification to the user's inbox and returns it with its
// generated id and timestamp filled in.
func (s *Store) Notify(ctx context.Context, userKey string, notification Notification) (Notification, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return Notification{}, fmt.Errorf("rx: generate id: %w", err)
	}
	notification.ID = id
	notification.Read = false
	notification.CreatedAt = s.nowMillis()
	if notification.Title == "" {
		notification.Title = "Notification"
	}
	if notification.Meta == nil {
		notification.Meta = map[string]any{}
	}

	inboxes, err := s.readNotifications(ctx)
	if err != nil {
		return Notification{}, err
	}
	inbox := append([]Notification{notification}, inboxes[userKey]...)
	if len(inbox) > maxNotificationsPerUser {
		inbox = inbox[:maxNotificationsPerUser]
	}
	inboxes[userKey] = inbox
	if err := s.writeNotifications(ctx, inboxes); err != nil {
		return Notification{}, err
	}
	s.publish()
	return notification, nil
}

// Notifications returns the user's inbox, newest first.
func (s *Store) Notifications(ctx context.Context, userKey string) ([]Notification, error) {
	inboxes, err := s.readNotifications(ctx)
	if err != nil {
		return nil, err
	}
	inbox := append([]Notification(nil), inboxes[userKey]...)
	sort.SliceStable(inbox, func(i, j int) bool {
		return inbox[i].CreatedAt > inbox[j].CreatedAt
	})
	return inbox, nil
}

// UnreadCount reports how many of the user's notifications are unread.
func (s *Store) UnreadCount(ctx context.Context, userKey string) (int, error) {
	inbox, err := s.Notifications(ctx, userKey)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, notification := range inbox {
		if !notification.Read {
			count++
		}
	}
	return count, nil
}

// MarkRead flags a single notification as read.
func (s *Store) MarkRead(ctx context.Context, userKey, notificationID string) error {
	return s.updateInbox(ctx, userKey, func(inbox []Notification) []Notification {
		for i := range inbox {
			if inbox[i].ID == notificationID {
				inbox[i].Read = true
			}
		}
		return inbox
	})
}

// MarkAllRead flags every notification for the user as read.
func (s *Store) MarkAllRead(ctx context.Context, userKey string) error {
	return s.updateInbox(ctx, userKey, func(inbox []Notification) []Notification {
		for i := range inbox {
			inbox[i].Read = true
		}
		return inbox
	})
}

// ClearNotifications empties the user's inbox.
func (s *Store) ClearNotifications(ctx context.Context, userKey string) error {
	return s.updateInbox(ctx, userKey, func([]Notification) []Notification {
		return []Notification{}
	})
}

func (s *Store) updateInbox(ctx context.Context, userKey string, apply func([]Notification) []Notification) error {
	inboxes, err := s.readNotifications(ctx)
	if err != nil {
		return err
	}
	inboxes[userKey] = apply(inboxes[userKey])
	if err := s.writeNotifications(ctx, inboxes); err != nil {
		return err
	}
	s.publish()
	return nil
}

func (s *Store) readSubmissions(ctx context.Context) ([]Submission, error) {
	raw, err := s.store.Get(ctx, storage.DocSubmissions)
	if errors.Is(err, storage.ErrNotFound) {
		return []Submission{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rx: read submissions: %w", err)
	}
	var submissions []Submission
	if err := json.Unmarshal(raw, &submissions); err != nil {
		s.logger.Warn("discarding unreadable submissions document", zap.Error(err))
		return []Submission{}, nil
	}
	return submissions, nil
}

func (s *Store) writeSubmissions(ctx context.Context, submissions []Submission) error {
	raw, err := json.Marshal(submissions)
	if err != nil {
		return fmt.Errorf("rx: encode submissions: %w", err)
	}
	if err := s.store.Put(ctx, storage.DocSubmissions, raw); err != nil {
		return fmt.Errorf("rx: write submissions: %w", err)
	}
	return nil
}

func (s *Store) readNotifications(ctx context.Context) (map[string][]Notification, error) {
	raw, err := s.store.Get(ctx, storage.DocNotifications)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string][]Notification{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rx: read notifications: %w", err)
	}
	var inboxes map[string][]Notification
	if err := json.Unmarshal(raw, &inboxes); err != nil {
		s.logger.Warn("discarding unreadable notifications document", zap.Error(err))
		return map[string][]Notification{}, nil
	}
	if inboxes == nil {
		inboxes = map[string][]Notification{}
	}
	return inboxes, nil
}

func (s *Store) writeNotifications(ctx context.Context, inboxes map[string][]Notification) error {
	raw, err := json.Marshal(inboxes)
	if err != nil {
		return fmt.Errorf("rx: encode notifications: %w", err)
	}
	if err := s.store.Put(ctx, storage.DocNotifications, raw); err != nil {
		return fmt.Errorf("rx: write notifications: %w", err)
	}
	return nil
}

func (s *Store) nowMillis() int64 {
	return s.clock().UTC().UnixMilli()
}

func (s *Store) publish() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Topic: events.TopicRxStoreUpdated,
		Key:   storage.DocSubmissions,
		Time:  s.clock().UTC(),
	})
}

func encodeDataURL(fileType string, data []byte) string {
	return "data:" + fileType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
