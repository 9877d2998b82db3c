package storage

import (
	"context"
	"errors"
)

// Logical document keys. The names mirror the browser profile the client
// replaces, so an exported profile can be imported without rewriting keys.
const (
	DocGuestCart       = "cartItems"
	DocAuthEnvelope    = "auth"
	DocSubmissions     = "RX_SUBMISSIONS_V1"
	DocNotifications   = "USER_NOTIFICATIONS_V1"
	DocCheckoutAddress = "CHECKOUT_ADDRESS"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("storage: document not found")

// Store is a durable per-profile document store. Values are opaque JSON
// documents; last writer wins. Watch exposes a change feed naming the keys
// that changed, never their payloads; consumers re-read on notification.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch returns a channel of changed document keys and a cancel func.
	// Delivery is at-least-once and may drop under consumer lag.
	Watch(ctx context.Context) (<-chan string, func(), error)
}
