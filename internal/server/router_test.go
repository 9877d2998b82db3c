package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/auth"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/session"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pharmaconnect-auth",
		Audience:      "pharmaconnect-api",
	})
	handler, err := NewHTTPHandler(Dependencies{Tokens: issuer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return handler
}

func performRequest(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func signInAsAdmin(t *testing.T, handler http.Handler) string {
	t.Helper()
	body := `{"email":"admin@pharmaconnect.local","password":"admin123"}`
	recorder := performRequest(handler, http.MethodPost, "/api/auth/signin", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign in failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var envelope struct {
		JWTToken string `json:"jwtToken"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode sign in response: %v", err)
	}
	token := session.ExtractToken(envelope.JWTToken)
	if token == "" {
		t.Fatalf("sign in response carried no usable token: %q", envelope.JWTToken)
	}
	return token
}

func TestSignInWrapsTokenCookieStyle(t *testing.T) {
	handler := newTestHandler(t)
	body := `{"email":"admin@pharmaconnect.local","password":"admin123"}`
	recorder := performRequest(handler, http.MethodPost, "/api/auth/signin", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	var envelope struct {
		JWTToken string          `json:"jwtToken"`
		User     json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(envelope.JWTToken, "onlinepharmacy=") {
		t.Fatalf("token must be cookie wrapped, got %q", envelope.JWTToken)
	}
	var user session.User
	if err := json.Unmarshal(envelope.User, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if !user.IsAdmin() {
		t.Fatalf("seeded account must be an admin, got %#v", user)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	handler := newTestHandler(t)
	body := `{"email":"admin@pharmaconnect.local","password":"wrong"}`
	recorder := performRequest(handler, http.MethodPost, "/api/auth/signin", "", body)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestSignUpThenSignIn(t *testing.T) {
	handler := newTestHandler(t)
	signUp := `{"email":"new@example.com","username":"new","password":"pw123"}`
	recorder := performRequest(handler, http.MethodPost, "/api/auth/signup", "", signUp)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Duplicate registration conflicts.
	recorder = performRequest(handler, http.MethodPost, "/api/auth/signup", "", signUp)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate signup, got %d", recorder.Code)
	}

	signIn := `{"email":"new@example.com","password":"pw123"}`
	recorder = performRequest(handler, http.MethodPost, "/api/auth/signin", "", signIn)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestHandler(t)
	recorder := performRequest(handler, http.MethodGet, "/api/carts/users/cart", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", recorder.Code)
	}

	recorder = performRequest(handler, http.MethodGet, "/api/carts/users/cart", "garbage-token", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", recorder.Code)
	}
}

func TestDuplicateAddConflicts(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	recorder := performRequest(handler, http.MethodPost, "/api/carts/products/1/quantity/2", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("first add failed with %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(handler, http.MethodPost, "/api/carts/products/1/quantity/1", token, "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate add, got %d", recorder.Code)
	}
	var response struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Message != "Product already exists in the cart" {
		t.Fatalf("unexpected conflict message %q", response.Message)
	}
}

func TestAddUnknownProduct(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	recorder := performRequest(handler, http.MethodPost, "/api/carts/products/999/quantity/1", token, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestIncrementAndDecrementQuantity(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	if recorder := performRequest(handler, http.MethodPost, "/api/carts/products/2/quantity/1", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("add failed with %d", recorder.Code)
	}
	if recorder := performRequest(handler, http.MethodPut, "/api/carts/products/2/quantity/add", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("increment failed with %d", recorder.Code)
	}

	recorder := performRequest(handler, http.MethodGet, "/api/carts/users/cart", token, "")
	var snapshot struct {
		Products []struct {
			ProductID int64 `json:"productId"`
			Quantity  int64 `json:"quantity"`
		} `json:"products"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(snapshot.Products) != 1 || snapshot.Products[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %#v", snapshot.Products)
	}
}

func TestDecrementAtOneDeletesLine(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	if recorder := performRequest(handler, http.MethodPost, "/api/carts/products/2/quantity/1", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("add failed with %d", recorder.Code)
	}
	if recorder := performRequest(handler, http.MethodPut, "/api/carts/products/2/quantity/delete", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("decrement failed with %d", recorder.Code)
	}

	recorder := performRequest(handler, http.MethodGet, "/api/carts/users/cart", token, "")
	var snapshot struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(snapshot.Products) != 0 {
		t.Fatalf("decrementing a single-unit line must delete it, got %#v", snapshot.Products)
	}
}

func TestLegacySingularPathStillServed(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	if recorder := performRequest(handler, http.MethodPost, "/api/carts/products/3/quantity/1", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("add failed with %d", recorder.Code)
	}
	recorder := performRequest(handler, http.MethodPut, "/api/cart/products/3/quantity/add", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("legacy path must work, got %d", recorder.Code)
	}
}

func TestServerAppliesSpecialPriceToTotal(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	// Product 1 carries a special price of 4.95.
	if recorder := performRequest(handler, http.MethodPost, "/api/carts/products/1/quantity/2", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("add failed with %d", recorder.Code)
	}
	recorder := performRequest(handler, http.MethodGet, "/api/carts/users/cart", token, "")
	var snapshot struct {
		TotalPrice float64 `json:"totalPrice"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if math.Abs(snapshot.TotalPrice-9.90) > 1e-9 {
		t.Fatalf("expected discounted total 9.90, got %v", snapshot.TotalPrice)
	}
}

func TestRemoveProductFromCart(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	if recorder := performRequest(handler, http.MethodPost, "/api/carts/products/2/quantity/1", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("add failed with %d", recorder.Code)
	}
	fetch := performRequest(handler, http.MethodGet, "/api/carts/users/cart", token, "")
	var snapshot struct {
		CartID int64 `json:"cartId"`
	}
	if err := json.Unmarshal(fetch.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode cart: %v", err)
	}

	recorder := performRequest(handler, http.MethodDelete,
		"/api/carts/"+strconv.FormatInt(snapshot.CartID, 10)+"/product/2", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("remove failed with %d: %s", recorder.Code, recorder.Body.String())
	}

	fetch = performRequest(handler, http.MethodGet, "/api/carts/users/cart", token, "")
	var after struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(fetch.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(after.Products) != 0 {
		t.Fatalf("expected empty cart after removal, got %#v", after.Products)
	}
}

func TestPlaceOrderConsumesCart(t *testing.T) {
	handler := newTestHandler(t)
	token := signInAsAdmin(t, handler)

	if recorder := performRequest(handler, http.MethodPost, "/api/carts/products/2/quantity/1", token, ""); recorder.Code != http.StatusOK {
		t.Fatalf("add failed with %d", recorder.Code)
	}

	payment := `{"addressId":1,"pgName":"NA","pgPaymentId":"NA","pgStatus":"SUCCESS","pgResponseMessage":"OK"}`
	recorder := performRequest(handler, http.MethodPost, "/api/order/users/payments/card", token, payment)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var order struct {
		OrderID     int64  `json:"orderId"`
		OrderStatus string `json:"orderStatus"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if order.OrderID == 0 || order.OrderStatus != "Order Accepted" {
		t.Fatalf("unexpected order %#v", order)
	}

	fetch := performRequest(handler, http.MethodGet, "/api/carts/users/cart", token, "")
	var after struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(fetch.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(after.Products) != 0 {
		t.Fatalf("order must consume the cart, got %#v", after.Products)
	}

	// An empty cart cannot be ordered again.
	recorder = performRequest(handler, http.MethodPost, "/api/order/users/payments/card", token, payment)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty cart, got %d", recorder.Code)
	}
}
