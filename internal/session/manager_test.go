package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	manager, err := NewManager(store, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return manager, store
}

func TestSaveMirrorsTokenAcrossAliases(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	signed := signedTestJWT(t)

	err := manager.Save(ctx, Envelope{
		JWTToken: "onlinepharmacy=" + signed + "; Path=/",
		User:     &User{ID: "42"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := store.Get(ctx, storage.DocAuthEnvelope)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var persisted Envelope
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for alias, value := range map[string]string{
		"token":       persisted.Token,
		"accessToken": persisted.AccessToken,
		"jwt":         persisted.JWT,
		"jwtToken":    persisted.JWTToken,
	} {
		if value != signed {
			t.Fatalf("alias %s not mirrored: %q", alias, value)
		}
	}
}

func TestLoadMissingEnvelopeIsGuest(t *testing.T) {
	manager, _ := newTestManager(t)
	envelope, err := manager.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope != nil {
		t.Fatalf("expected nil envelope, got %#v", envelope)
	}
}

func TestLoadCorruptEnvelopeIsGuest(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	if err := store.Put(ctx, storage.DocAuthEnvelope, []byte("{broken")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	envelope, err := manager.Load(ctx)
	if err != nil {
		t.Fatalf("corrupt envelope must not fail the load: %v", err)
	}
	if envelope != nil {
		t.Fatalf("expected nil envelope, got %#v", envelope)
	}
}

func TestClearRemovesSession(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	signed := signedTestJWT(t)

	if err := manager.Save(ctx, Envelope{Token: signed, User: &User{ID: "42"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := manager.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	user, err := manager.CurrentUser(ctx)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user != nil {
		t.Fatalf("expected guest after clear, got %#v", user)
	}
}

func TestBearerTokenForGuestIsEmpty(t *testing.T) {
	manager, _ := newTestManager(t)
	token, err := manager.BearerToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}
