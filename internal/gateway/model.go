package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Line is one product's presence in the server cart DTO.
type Line struct {
	ProductID    int64    `json:"productId"`
	ProductName  string   `json:"productName,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Quantity     int64    `json:"quantity"`
	Price        float64  `json:"price"`
	SpecialPrice *float64 `json:"specialPrice,omitempty"`
}

// EffectiveUnitPrice is the post-discount unit price. The backend omits
// specialPrice when no discount applies.
func (l Line) EffectiveUnitPrice() float64 {
	if l.SpecialPrice != nil {
		return *l.SpecialPrice
	}
	return l.Price
}

// Snapshot is the canonical cart shape every gateway response normalizes
// into. CartID is nil for responses that carry no server cart.
type Snapshot struct {
	CartID     *int64  `json:"cartId"`
	Lines      []Line  `json:"products"`
	TotalPrice float64 `json:"totalPrice"`
}

// NormalizeSnapshot converts any observed response shape into a Snapshot:
// the documented {cartId, products, totalPrice} body, bodies wrapping the
// line list as content/items, and bare line arrays. Shape ambiguity stops
// here; nothing past this function sniffs fields.
func NormalizeSnapshot(raw []byte) (Snapshot, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Snapshot{Lines: []Line{}}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var lines []Line
		if err := json.Unmarshal(raw, &lines); err != nil {
			return Snapshot{}, err
		}
		return withTotal(Snapshot{Lines: lines, TotalPrice: -1}), nil
	}

	var body struct {
		CartID     json.RawMessage `json:"cartId"`
		Products   []Line          `json:"products"`
		Content    []Line          `json:"content"`
		Items      []Line          `json:"items"`
		TotalPrice *float64        `json:"totalPrice"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{CartID: decodeCartID(body.CartID)}
	switch {
	case body.Products != nil:
		snapshot.Lines = body.Products
	case body.Content != nil:
		snapshot.Lines = body.Content
	case body.Items != nil:
		snapshot.Lines = body.Items
	default:
		snapshot.Lines = []Line{}
	}
	if body.TotalPrice != nil {
		snapshot.TotalPrice = *body.TotalPrice
		return snapshot, nil
	}
	snapshot.TotalPrice = -1
	return withTotal(snapshot), nil
}

func withTotal(snapshot Snapshot) Snapshot {
	if snapshot.TotalPrice >= 0 {
		return snapshot
	}
	total := 0.0
	for _, line := range snapshot.Lines {
		total += float64(line.Quantity) * line.EffectiveUnitPrice()
	}
	snapshot.TotalPrice = total
	return snapshot
}

func decodeCartID(raw json.RawMessage) *int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return &asNumber
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64); err == nil {
			return &parsed
		}
	}
	return nil
}
