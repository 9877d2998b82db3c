package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/events"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/gateway"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/session"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
	"go.uber.org/zap"
)

var (
	errMissingGateway  = errors.New("cart gateway is required")
	errMissingStore    = errors.New("document store is required")
	errMissingSessions = errors.New("session source is required")
	noOpLogger         = zap.NewNop()

	// ErrUnauthorized signals the backend rejected the session; the cart is
	// left untouched so an auth problem never masquerades as a local add.
	ErrUnauthorized = errors.New("cart: authorization required")
	// ErrInvalidQuantity rejects quantities below one.
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "cart.service.new"
	opLoad         = "cart.load"
	opRefresh      = "cart.refresh"
	opAddLine      = "cart.add_line"
	opIncreaseLine = "cart.increase_line"
	opDecreaseLine = "cart.decrease_line"
	opRemoveLine   = "cart.remove_line"
	opMergeGuest   = "cart.merge_guest_cart"
	opReset        = "cart.reset"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Gateway is the slice of the backend client the engine mutates carts with.
type Gateway interface {
	FetchCart(ctx context.Context) (gateway.Snapshot, error)
	AddProduct(ctx context.Context, productID, quantity int64) (gateway.Snapshot, error)
	IncrementProduct(ctx context.Context, productID int64) error
	DecrementProduct(ctx context.Context, productID int64) error
	RemoveProduct(ctx context.Context, cartID, productID int64) error
}

// SessionSource reports the signed-in user, or nil for a guest.
type SessionSource interface {
	CurrentUser(ctx context.Context) (*session.User, error)
}

type ServiceConfig struct {
	Gateway  Gateway
	Sessions SessionSource
	Store    storage.Store
	Bus      *events.Bus
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service owns the authoritative cart and routes every mutation to either
// the remote gateway (session) or the local snapshot (guest). The internal
// mutex serialises mutations end to end, so rapid repeated calls queue
// instead of interleaving gateway traffic against the same cart.
type Service struct {
	mu       sync.Mutex
	cart     Cart
	gw       Gateway
	sessions SessionSource
	store    storage.Store
	bus      *events.Bus
	logger   *zap.Logger
	clock    func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Gateway == nil {
		return nil, newServiceError(opServiceNew, "missing_gateway", errMissingGateway)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Sessions == nil {
		return nil, newServiceError(opServiceNew, "missing_sessions", errMissingSessions)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		cart:     Cart{Lines: []Line{}},
		gw:       cfg.Gateway,
		sessions: cfg.Sessions,
		store:    cfg.Store,
		bus:      cfg.Bus,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Outcome reports how a mutation settled. Degraded means the backend call
// failed and the change was applied to the local snapshot instead; Warning
// carries the user-facing soft failure text.
type Outcome struct {
	Cart     Cart
	Degraded bool
	Warning  string
}

// Current returns a copy of the authoritative cart.
func (s *Service) Current() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.clone()
}

// Load hydrates the cart: from the gateway when a session exists, otherwise
// from the cached local snapshot.
func (s *Service) Load(ctx context.Context) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		return Cart{}, newServiceError(opLoad, "session_lookup_failed", err)
	}
	if user != nil {
		return s.refreshLocked(ctx)
	}

	s.cart = s.readCache(ctx)
	return s.cart.clone(), nil
}

// Refresh replaces the authoritative cart with the gateway's current state.
// On any gateway failure the cart resets to empty rather than keeping stale
// data, and the failure is returned for display.
func (s *Service) Refresh(ctx context.Context) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) (Cart, error) {
	snapshot, err := s.gw.FetchCart(ctx)
	if err != nil {
		s.cart = Cart{Lines: []Line{}}
		s.writeCache(ctx)
		s.publish()
		s.logger.Warn("cart fetch failed, reset to empty",
			zap.String("operation", opRefresh), zap.Error(err))
		return s.cart.clone(), newServiceError(opRefresh, "fetch_failed", err)
	}
	s.cart = fromSnapshot(snapshot)
	s.writeCache(ctx)
	s.publish()
	return s.cart.clone(), nil
}

// AddLine adds quantity units of the product. Guests always succeed locally.
// With a session the add endpoint is tried first; the already-exists signal
// falls back to one increment call per unit (the backend has no idempotent
// upsert), 401 surfaces as ErrUnauthorized with the cart untouched, and any
// other failure degrades to an optimistic local mutation.
func (s *Service) AddLine(ctx context.Context, product Product, quantity int64) (Outcome, error) {
	if quantity < 1 {
		return Outcome{}, newServiceError(opAddLine, "invalid_quantity", ErrInvalidQuantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		return Outcome{}, newServiceError(opAddLine, "session_lookup_failed", err)
	}
	if user == nil {
		s.addLocalLocked(ctx, product, quantity)
		return Outcome{Cart: s.cart.clone()}, nil
	}

	if _, err := s.gw.AddProduct(ctx, product.ProductID, quantity); err != nil {
		switch {
		case gateway.IsAlreadyInCart(err):
			if incErr := s.incrementTimesLocked(ctx, product.ProductID, quantity); incErr != nil {
				if gateway.IsUnauthorized(incErr) {
					return Outcome{}, newServiceError(opAddLine, "unauthorized", ErrUnauthorized)
				}
				s.addLocalLocked(ctx, product, quantity)
				s.logError(opAddLine, "increment_fallback_failed", incErr,
					zap.Int64("product_id", product.ProductID))
				return Outcome{
					Cart:     s.cart.clone(),
					Degraded: true,
					Warning:  "backend cart unavailable, added locally",
				}, nil
			}
		case gateway.IsUnauthorized(err):
			return Outcome{}, newServiceError(opAddLine, "unauthorized", ErrUnauthorized)
		default:
			s.addLocalLocked(ctx, product, quantity)
			s.logError(opAddLine, "backend_add_failed", err,
				zap.Int64("product_id", product.ProductID))
			return Outcome{
				Cart:     s.cart.clone(),
				Degraded: true,
				Warning:  "backend cart unavailable, added locally",
			}, nil
		}
	}

	// Refetch so server-computed pricing and discounts land in the cart.
	refreshed, err := s.refreshLocked(ctx)
	if err != nil {
		return Outcome{Cart: refreshed, Degraded: true, Warning: "cart refresh failed"}, nil
	}
	return Outcome{Cart: refreshed}, nil
}

// IncreaseLine raises the line's quantity by one unit.
func (s *Service) IncreaseLine(ctx context.Context, productID int64) (Outcome, error) {
	return s.adjustLine(ctx, productID, +1, opIncreaseLine)
}

// DecreaseLine lowers the line's quantity by one unit, floor-clamped at 1.
// A line at quantity 1 is left untouched and no gateway call is made, so the
// backend's delete-at-zero behavior can never remove a line as a side
// effect of decrementing.
func (s *Service) DecreaseLine(ctx context.Context, productID int64) (Outcome, error) {
	return s.adjustLine(ctx, productID, -1, opDecreaseLine)
}

func (s *Service) adjustLine(ctx context.Context, productID, delta int64, operation string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.findLineLocked(productID)
	if index < 0 {
		return Outcome{}, newServiceError(operation, "line_not_found",
			fmt.Errorf("product %d is not in the cart", productID))
	}
	if delta < 0 && s.cart.Lines[index].Quantity <= 1 {
		return Outcome{Cart: s.cart.clone()}, nil
	}

	user, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		return Outcome{}, newServiceError(operation, "session_lookup_failed", err)
	}
	if user != nil {
		gatewayCall := s.gw.IncrementProduct
		if delta < 0 {
			gatewayCall = s.gw.DecrementProduct
		}
		if err := gatewayCall(ctx, productID); err == nil {
			refreshed, refreshErr := s.refreshLocked(ctx)
			if refreshErr != nil {
				return Outcome{Cart: refreshed, Degraded: true, Warning: "cart refresh failed"}, nil
			}
			return Outcome{Cart: refreshed}, nil
		} else {
			s.logError(operation, "backend_update_failed", err, zap.Int64("product_id", productID))
		}
	}

	s.cart.Lines[index].Quantity += delta
	if s.cart.Lines[index].Quantity < 1 {
		s.cart.Lines[index].Quantity = 1
	}
	s.cart.recompute()
	s.writeCache(ctx)
	s.publish()
	if user != nil {
		return Outcome{Cart: s.cart.clone(), Degraded: true, Warning: "backend cart unavailable, updated locally"}, nil
	}
	return Outcome{Cart: s.cart.clone()}, nil
}

// RemoveLine deletes the product's line. Removing an absent line is a no-op,
// not an error.
func (s *Service) RemoveLine(ctx context.Context, productID int64) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLineLocked(productID) < 0 {
		return Outcome{Cart: s.cart.clone()}, nil
	}

	user, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		return Outcome{}, newServiceError(opRemoveLine, "session_lookup_failed", err)
	}
	if user != nil && s.cart.CartID != nil {
		if err := s.gw.RemoveProduct(ctx, *s.cart.CartID, productID); err == nil {
			refreshed, refreshErr := s.refreshLocked(ctx)
			if refreshErr != nil {
				return Outcome{Cart: refreshed, Degraded: true, Warning: "cart refresh failed"}, nil
			}
			return Outcome{Cart: refreshed}, nil
		} else {
			s.logError(opRemoveLine, "backend_remove_failed", err, zap.Int64("product_id", productID))
		}
	}

	filtered := s.cart.Lines[:0:0]
	for _, line := range s.cart.Lines {
		if line.ProductID != productID {
			filtered = append(filtered, line)
		}
	}
	s.cart.Lines = filtered
	s.cart.recompute()
	s.writeCache(ctx)
	s.publish()
	if user != nil {
		return Outcome{Cart: s.cart.clone(), Degraded: true, Warning: "backend cart unavailable, removed locally"}, nil
	}
	return Outcome{Cart: s.cart.clone()}, nil
}

// MergeGuestCart runs once after sign-in. Guest lines are pushed to the
// server only when the freshly fetched server cart is empty; a non-empty
// server cart wins and the guest lines are dropped. Whether that drop is
// intended product behavior is an open question flagged for review.
func (s *Service) MergeGuestCart(ctx context.Context) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guestLines := s.readCache(ctx).Lines

	snapshot, err := s.gw.FetchCart(ctx)
	if err != nil {
		// Keep the guest snapshot live so the user is not blocked.
		s.cart = Cart{Lines: guestLines}
		s.cart.recompute()
		s.writeCache(ctx)
		s.publish()
		return s.cart.clone(), newServiceError(opMergeGuest, "fetch_failed", err)
	}

	serverCart := fromSnapshot(snapshot)
	if (serverCart.CartID != nil && !serverCart.IsEmpty()) || len(guestLines) == 0 {
		s.cart = serverCart
		s.writeCache(ctx)
		s.publish()
		return s.cart.clone(), nil
	}

	for _, line := range guestLines {
		if line.ProductID == 0 || line.Quantity < 1 {
			continue
		}
		if _, err := s.gw.AddProduct(ctx, line.ProductID, line.Quantity); err != nil {
			if !gateway.IsAlreadyInCart(err) {
				s.logError(opMergeGuest, "push_line_failed", err, zap.Int64("product_id", line.ProductID))
				continue
			}
			if incErr := s.incrementTimesLocked(ctx, line.ProductID, line.Quantity); incErr != nil {
				s.logError(opMergeGuest, "push_line_failed", incErr, zap.Int64("product_id", line.ProductID))
			}
		}
	}

	return s.refreshLocked(ctx)
}

// Reset empties the cart and clears the cached snapshot, used on logout.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = Cart{Lines: []Line{}}
	if err := s.store.Delete(ctx, storage.DocGuestCart); err != nil {
		return newServiceError(opReset, "cache_clear_failed", err)
	}
	s.publish()
	return nil
}

// incrementTimesLocked works around the missing bulk increment: the gateway
// exposes only a single-unit call, invoked sequentially once per unit.
func (s *Service) incrementTimesLocked(ctx context.Context, productID, times int64) error {
	if times < 1 {
		times = 1
	}
	for i := int64(0); i < times; i++ {
		if err := s.gw.IncrementProduct(ctx, productID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) addLocalLocked(ctx context.Context, product Product, quantity int64) {
	if index := s.findLineLocked(product.ProductID); index >= 0 {
		s.cart.Lines[index].Quantity += quantity
	} else {
		s.cart.Lines = append(s.cart.Lines, product.toLine(quantity))
	}
	s.cart.recompute()
	s.writeCache(ctx)
	s.publish()
}

func (s *Service) findLineLocked(productID int64) int {
	for i, line := range s.cart.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Service) readCache(ctx context.Context) Cart {
	cart := Cart{Lines: []Line{}}
	raw, err := s.store.Get(ctx, storage.DocGuestCart)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("cart cache read failed", zap.Error(err))
		}
		return cart
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		s.logger.Warn("discarding unreadable cart cache", zap.Error(err))
		return cart
	}
	for _, line := range lines {
		if line.Quantity >= 1 {
			cart.Lines = append(cart.Lines, line)
		}
	}
	cart.recompute()
	return cart
}

func (s *Service) writeCache(ctx context.Context) {
	raw, err := json.Marshal(s.cart.Lines)
	if err != nil {
		s.logger.Warn("cart cache encode failed", zap.Error(err))
		return
	}
	if err := s.store.Put(ctx, storage.DocGuestCart, raw); err != nil {
		s.logger.Warn("cart cache write failed", zap.Error(err))
	}
}

func (s *Service) publish() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Topic: events.TopicCartUpdated,
		Key:   storage.DocGuestCart,
		Time:  s.clock().UTC(),
	})
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("cart service error", attrs...)
}
