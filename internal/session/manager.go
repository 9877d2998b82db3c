package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
	"go.uber.org/zap"
)

// Envelope is the persisted auth document. The token is mirrored into every
// field name the backend has ever used so older readers keep working.
type Envelope struct {
	Token       string `json:"token,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	JWT         string `json:"jwt,omitempty"`
	JWTToken    string `json:"jwtToken,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// BearerToken returns the first recognizable token field, unwrapped.
func (e *Envelope) BearerToken() string {
	if e == nil {
		return ""
	}
	for _, candidate := range []string{e.Token, e.AccessToken, e.JWT, e.JWTToken} {
		if token := ExtractToken(candidate); token != "" {
			return token
		}
	}
	return ""
}

// Manager owns the auth envelope document.
type Manager struct {
	store  storage.Store
	logger *zap.Logger
}

func NewManager(store storage.Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}, nil
}

// Load returns the stored envelope, or nil when no session exists. A corrupt
// document is treated as no session rather than a fatal error.
func (m *Manager) Load(ctx context.Context) (*Envelope, error) {
	raw, err := m.store.Get(ctx, storage.DocAuthEnvelope)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load envelope: %w", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		m.logger.Warn("discarding unreadable auth envelope", zap.Error(err))
		return nil, nil
	}
	return &envelope, nil
}

// Save normalizes the token across all field aliases and persists the envelope.
func (m *Manager) Save(ctx context.Context, envelope Envelope) error {
	clean := envelope.BearerToken()
	envelope.Token = clean
	envelope.AccessToken = clean
	envelope.JWT = clean
	envelope.JWTToken = clean

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("session: encode envelope: %w", err)
	}
	if err := m.store.Put(ctx, storage.DocAuthEnvelope, raw); err != nil {
		return fmt.Errorf("session: save envelope: %w", err)
	}
	return nil
}

// Clear removes the stored session.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, storage.DocAuthEnvelope); err != nil {
		return fmt.Errorf("session: clear envelope: %w", err)
	}
	return nil
}

// CurrentUser returns the signed-in user, or nil for a guest.
func (m *Manager) CurrentUser(ctx context.Context) (*User, error) {
	envelope, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, nil
	}
	return envelope.User, nil
}

// BearerToken returns the current session token, or empty for a guest.
func (m *Manager) BearerToken(ctx context.Context) (string, error) {
	envelope, err := m.Load(ctx)
	if err != nil {
		return "", err
	}
	return envelope.BearerToken(), nil
}
