// Package server hosts a development stub of the remote pharmacy backend.
// It reproduces the quirks the client has to cope with, such as the
// non-idempotent add endpoint that reports duplicates as 409 and the
// decrement endpoint that deletes a line at zero, so the reconciliation
// paths can be exercised without the real deployment.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/auth"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/gateway"
	"go.uber.org/zap"
)

const accountContextKey = "pharmaconnect_account"

var errMissingTokenIssuer = errors.New("token issuer dependency required")

type Dependencies struct {
	Tokens *auth.TokenIssuer
	Logger *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.Tokens,
		state:  newState(),
		logger: logger,
	}

	api := router.Group("/api")
	api.POST("/auth/signup", handler.handleSignUp)
	api.POST("/auth/signin", handler.handleSignIn)
	api.POST("/auth/signout", handler.handleSignOut)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/carts/users/cart", handler.handleFetchCart)
	protected.POST("/carts/products/:productId/quantity/:qty", handler.handleAddProduct)
	protected.PUT("/carts/products/:productId/quantity/:op", handler.handleAdjustQuantity)
	// Legacy singular path still used by older client builds.
	protected.PUT("/cart/products/:productId/quantity/:op", handler.handleAdjustQuantity)
	protected.DELETE("/carts/:cartId/product/:productId", handler.handleRemoveProduct)
	protected.POST("/order/users/payments/:method", handler.handlePlaceOrder)

	return router, nil
}

type httpHandler struct {
	tokens *auth.TokenIssuer
	state  *state
	logger *zap.Logger
}

type signUpPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var request signUpPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Email) == "" || strings.TrimSpace(request.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email and password are required"})
		return
	}

	h.state.mu.Lock()
	err := h.state.register(strings.TrimSpace(request.Email), strings.TrimSpace(request.Username), request.Password)
	h.state.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

type signInPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var request signInPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid credentials payload"})
		return
	}
	login := strings.TrimSpace(request.Email)
	if login == "" {
		login = strings.TrimSpace(request.Username)
	}

	h.state.mu.Lock()
	acct, ok := h.state.authenticate(login, request.Password)
	h.state.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "bad credentials"})
		return
	}

	token, _, err := h.tokens.IssueToken(c.Request.Context(), auth.AccountClaims{
		Subject: acct.Email,
		Email:   acct.Email,
		Roles:   acct.Roles,
	})
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token issue failed"})
		return
	}

	// The real backend hands the token back inside a Set-Cookie style
	// string; the client's extraction contract depends on it.
	c.JSON(http.StatusOK, gin.H{
		"jwtToken": "onlinepharmacy=" + token + "; Path=/; HttpOnly",
		"user": gin.H{
			"userId":   acct.Email,
			"email":    acct.Email,
			"username": acct.Username,
			"roles":    acct.Roles,
		},
	})
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization header missing or invalid"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	c.Set(accountContextKey, claims)
	c.Next()
}

func (h *httpHandler) claims(c *gin.Context) (auth.AccountClaims, bool) {
	value, ok := c.Get(accountContextKey)
	if !ok {
		return auth.AccountClaims{}, false
	}
	claims, ok := value.(auth.AccountClaims)
	return claims, ok
}

func (h *httpHandler) handleFetchCart(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	h.state.mu.Lock()
	snapshot := h.state.cartFor(claims.Subject).snapshot()
	h.state.mu.Unlock()

	c.JSON(http.StatusOK, snapshot)
}

func (h *httpHandler) handleAddProduct(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product id"})
		return
	}
	quantity, err := strconv.ParseInt(c.Param("qty"), 10, 64)
	if err != nil || quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid quantity"})
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	item, found := h.state.findProduct(productID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "product not found"})
		return
	}
	cart := h.state.cartFor(claims.Subject)
	if cart.find(productID) >= 0 {
		// No idempotent upsert here: a duplicate add is a conflict the
		// client resolves through the increment endpoint.
		c.JSON(http.StatusConflict, gin.H{"message": "Product already exists in the cart"})
		return
	}
	cart.Lines = append(cart.Lines, gateway.Line{
		ProductID:    item.ID,
		ProductName:  item.Name,
		Quantity:     quantity,
		Price:        item.Price,
		SpecialPrice: item.SpecialPrice,
	})
	c.JSON(http.StatusOK, cart.snapshot())
}

func (h *httpHandler) handleAdjustQuantity(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product id"})
		return
	}
	operation := c.Param("op")
	if operation != "add" && operation != "delete" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "operation must be add or delete"})
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	cart := h.state.cartFor(claims.Subject)
	index := cart.find(productID)
	if index < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "product not in cart"})
		return
	}
	if operation == "add" {
		cart.Lines[index].Quantity++
	} else {
		cart.Lines[index].Quantity--
		// Decrementing to zero deletes the line. The client clamps at one
		// specifically because of this behavior.
		if cart.Lines[index].Quantity < 1 {
			cart.Lines = append(cart.Lines[:index], cart.Lines[index+1:]...)
		}
	}
	c.JSON(http.StatusOK, cart.snapshot())
}

func (h *httpHandler) handleRemoveProduct(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	cartID, err := strconv.ParseInt(c.Param("cartId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid cart id"})
		return
	}
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid product id"})
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	cart := h.state.cartFor(claims.Subject)
	if cart.ID != cartID {
		c.JSON(http.StatusNotFound, gin.H{"message": "cart not found"})
		return
	}
	if index := cart.find(productID); index >= 0 {
		cart.Lines = append(cart.Lines[:index], cart.Lines[index+1:]...)
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

type paymentPayload struct {
	AddressID         int64  `json:"addressId"`
	PGName            string `json:"pgName"`
	PGPaymentID       string `json:"pgPaymentId"`
	PGStatus          string `json:"pgStatus"`
	PGResponseMessage string `json:"pgResponseMessage"`
}

func (h *httpHandler) handlePlaceOrder(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	var request paymentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payment payload"})
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	cart := h.state.cartFor(claims.Subject)
	snapshot := cart.snapshot()
	if len(snapshot.Lines) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "cart is empty"})
		return
	}

	h.state.nextOrder++
	orderID := h.state.nextOrder
	cart.Lines = []gateway.Line{}

	c.JSON(http.StatusCreated, gin.H{
		"orderId":       orderID,
		"email":         claims.Email,
		"paymentMethod": c.Param("method"),
		"pgName":        request.PGName,
		"pgStatus":      request.PGStatus,
		"totalAmount":   snapshot.TotalPrice,
		"orderItems":    snapshot.Lines,
		"orderStatus":   "Order Accepted",
	})
}
