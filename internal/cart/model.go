package cart

import (
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/gateway"
)

// Product describes a catalog item being added to the cart.
type Product struct {
	ProductID    int64    `json:"productId"`
	ProductName  string   `json:"productName,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	UnitPrice    float64  `json:"price"`
	SpecialPrice *float64 `json:"specialPrice,omitempty"`
}

// Line is one product's presence in the authoritative cart. Quantity is
// always >= 1; removal is modeled as absence, never as quantity zero.
// The JSON shape matches the browser build's cartItems document so an
// exported profile hydrates without translation.
type Line struct {
	ProductID    int64    `json:"productId"`
	ProductName  string   `json:"productName,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Quantity     int64    `json:"quantity"`
	UnitPrice    float64  `json:"price"`
	SpecialPrice *float64 `json:"specialPrice,omitempty"`
}

// EffectiveUnitPrice is the post-discount unit price.
func (l Line) EffectiveUnitPrice() float64 {
	if l.SpecialPrice != nil {
		return *l.SpecialPrice
	}
	return l.UnitPrice
}

// LineTotal is always recomputed, never stored, so it cannot drift.
func (l Line) LineTotal() float64 {
	return float64(l.Quantity) * l.EffectiveUnitPrice()
}

// Cart is the authoritative cart state. CartID is nil for a guest cart.
type Cart struct {
	CartID     *int64
	Lines      []Line
	TotalPrice float64
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// recompute derives TotalPrice from the lines. Every mutation path ends in
// either a full refetch or this full recomputation; totals are never
// adjusted incrementally.
func (c *Cart) recompute() {
	total := 0.0
	for _, line := range c.Lines {
		total += line.LineTotal()
	}
	c.TotalPrice = total
}

// clone returns an independent copy safe to hand to callers.
func (c Cart) clone() Cart {
	copied := Cart{TotalPrice: c.TotalPrice}
	if c.CartID != nil {
		id := *c.CartID
		copied.CartID = &id
	}
	copied.Lines = make([]Line, len(c.Lines))
	copy(copied.Lines, c.Lines)
	return copied
}

func fromSnapshot(snapshot gateway.Snapshot) Cart {
	cart := Cart{CartID: snapshot.CartID, Lines: make([]Line, 0, len(snapshot.Lines))}
	for _, line := range snapshot.Lines {
		if line.Quantity < 1 {
			continue
		}
		cart.Lines = append(cart.Lines, Line{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			ImageURL:     line.ImageURL,
			Quantity:     line.Quantity,
			UnitPrice:    line.Price,
			SpecialPrice: line.SpecialPrice,
		})
	}
	cart.recompute()
	return cart
}

func (p Product) toLine(quantity int64) Line {
	return Line{
		ProductID:    p.ProductID,
		ProductName:  p.ProductName,
		ImageURL:     p.ImageURL,
		Quantity:     quantity,
		UnitPrice:    p.UnitPrice,
		SpecialPrice: p.SpecialPrice,
	}
}
