package server

import (
	"fmt"
	"sync"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/gateway"
)

// product is one catalog entry served by the stub.
type product struct {
	ID           int64
	Name         string
	Price        float64
	SpecialPrice *float64
}

func discounted(price, discount float64) *float64 {
	value := price - discount
	return &value
}

// defaultCatalog seeds the stub with a small pharmacy shelf.
func defaultCatalog() []product {
	return []product{
		{ID: 1, Name: "Paracetamol 500mg", Price: 5.50, SpecialPrice: discounted(5.50, 0.55)},
		{ID: 2, Name: "Ibuprofen 200mg", Price: 7.25},
		{ID: 3, Name: "Cetirizine 10mg", Price: 9.00, SpecialPrice: discounted(9.00, 1.00)},
		{ID: 4, Name: "Vitamin D3 1000IU", Price: 12.40},
		{ID: 5, Name: "Amoxicillin 250mg", Price: 15.80, SpecialPrice: discounted(15.80, 2.30)},
	}
}

type account struct {
	Email    string
	Username string
	Password string
	Roles    []string
}

type cartState struct {
	ID    int64
	Lines []gateway.Line
}

func (c *cartState) snapshot() gateway.Snapshot {
	id := c.ID
	lines := make([]gateway.Line, len(c.Lines))
	copy(lines, c.Lines)
	total := 0.0
	for _, line := range lines {
		total += float64(line.Quantity) * line.EffectiveUnitPrice()
	}
	return gateway.Snapshot{CartID: &id, Lines: lines, TotalPrice: total}
}

func (c *cartState) find(productID int64) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// state is the stub's in-memory world: accounts, carts, and orders. Nothing
// survives a restart; the client under development owns all durable state.
type state struct {
	mu         sync.Mutex
	catalog    []product
	accounts   map[string]account
	carts      map[string]*cartState
	nextCartID int64
	nextOrder  int64
}

func newState() *state {
	s := &state{
		catalog:    defaultCatalog(),
		accounts:   make(map[string]account),
		carts:      make(map[string]*cartState),
		nextCartID: 100,
		nextOrder:  5000,
	}
	// Seeded review account for the admin console.
	s.accounts["admin@pharmaconnect.local"] = account{
		Email:    "admin@pharmaconnect.local",
		Username: "admin",
		Password: "admin123",
		Roles:    []string{"ROLE_ADMIN"},
	}
	return s
}

func (s *state) findProduct(productID int64) (product, bool) {
	for _, p := range s.catalog {
		if p.ID == productID {
			return p, true
		}
	}
	return product{}, false
}

func (s *state) cartFor(subject string) *cartState {
	cart, ok := s.carts[subject]
	if !ok {
		s.nextCartID++
		cart = &cartState{ID: s.nextCartID, Lines: []gateway.Line{}}
		s.carts[subject] = cart
	}
	return cart
}

func (s *state) register(email, username, password string) error {
	if _, exists := s.accounts[email]; exists {
		return fmt.Errorf("account already exists")
	}
	s.accounts[email] = account{
		Email:    email,
		Username: username,
		Password: password,
		Roles:    []string{"ROLE_USER"},
	}
	return nil
}

func (s *state) authenticate(login, password string) (account, bool) {
	for _, acct := range s.accounts {
		if (acct.Email == login || acct.Username == login) && acct.Password == password {
			return acct, true
		}
	}
	return account{}, false
}
