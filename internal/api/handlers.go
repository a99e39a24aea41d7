// Package api maps the HTTP surface onto the exchange core: bearer-token
// auth, field-keyed validation errors as 422, reservation and lifecycle
// failures as 400, and the order/trade wire shapes with fixed-8 decimal
// strings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"spotex/internal/auth"
	"spotex/internal/db"
	"spotex/internal/events"
	"spotex/internal/exchange"
	"spotex/internal/models"
	"spotex/internal/money"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxToken  contextKey = "token"
)

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	DB       *db.DB
	Exchange *exchange.Service
	Auth     *auth.Service
	Hub      *events.Hub
	Logger   *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(database *db.DB, ex *exchange.Service, authService *auth.Service, hub *events.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		DB:       database,
		Exchange: ex,
		Auth:     authService,
		Hub:      hub,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequireAuth verifies the bearer token and stashes the user id and the
// raw token (for logout) on the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Authorization header required"})
			return
		}
		userID, err := h.Auth.UserFromToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired token"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

func userIDFrom(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(ctxUserID).(int64)
	return id, ok
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	token, user, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(ctxToken).(string)
	if err := h.Auth.Logout(token); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Profile handles GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	user, assets, err := h.Exchange.Profile(r.Context(), userID)
	if err != nil {
		h.Logger.Error("failed to load profile", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to load profile"})
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "assets": assets})
}

// GetOrderBook handles GET /orders?symbol=X.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string][]string{"symbol": {"symbol is required"}},
		})
		return
	}
	buys, sells, err := h.Exchange.Book(r.Context(), symbol)
	if err != nil {
		h.Logger.Error("failed to load order book", "symbol", symbol, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to load order book"})
		return
	}
	if buys == nil {
		buys = []models.Order{}
	}
	if sells == nil {
		sells = []models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":      symbol,
		"buy_orders":  buys,
		"sell_orders": sells,
	})
}

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}

	var req struct {
		Symbol string `json:"symbol"`
		Side   string `json:"side"`
		Price  any    `json:"price"`
		Amount any    `json:"amount"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	fieldErrs := map[string][]string{}
	price, err := parseWireDecimal(req.Price)
	if err != nil {
		fieldErrs["price"] = []string{err.Error()}
	}
	amount, err := parseWireDecimal(req.Amount)
	if err != nil {
		fieldErrs["amount"] = []string{err.Error()}
	}
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}

	order, err := h.Exchange.Submit(r.Context(), userID, req.Symbol, strings.ToLower(req.Side), price, amount)
	if err != nil {
		h.writeOrderError(w, "Failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Order created", "order": order})
}

// CancelOrder handles POST /orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Failed to cancel order",
			"error":   "invalid order id",
		})
		return
	}

	order, err := h.Exchange.Cancel(r.Context(), userID, orderID)
	if err != nil {
		h.writeOrderError(w, "Failed to cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order cancelled", "order": order})
}

// MyOrders handles GET /orders/mine.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	orders, err := h.Exchange.ListOrders(r.Context(), userID)
	if err != nil {
		h.Logger.Error("failed to list orders", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to retrieve orders"})
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetUserTrades handles GET /trades.
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	trades, err := h.Exchange.ListTrades(r.Context(), userID)
	if err != nil {
		h.Logger.Error("failed to list trades", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to retrieve trades"})
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServeWS handles GET /ws?token=..., subscribing the connection to the
// authenticated user's private event channel.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	userID, err := h.Auth.UserFromToken(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := h.Hub.Register(userID, conn)
	go h.Hub.Listen(client)
}

func (h *Handler) writeOrderError(w http.ResponseWriter, message string, err error) {
	var verr *exchange.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Fields})
	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrInsufficientAsset),
		errors.Is(err, exchange.ErrAssetNotFound),
		errors.Is(err, exchange.ErrCannotCancel),
		errors.Is(err, exchange.ErrOrderNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": message, "error": err.Error()})
	case errors.Is(err, db.ErrTxConflict):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": message, "error": "temporary conflict, please retry"})
	default:
		h.Logger.Error("order operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": message})
	}
}

// parseWireDecimal accepts either a JSON number or a decimal string.
func parseWireDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Decimal{}, errors.New("is required")
	case string:
		d, err := money.Parse(val)
		if err != nil {
			return decimal.Decimal{}, errors.New("must be numeric")
		}
		return d, nil
	case json.Number:
		d, err := money.Parse(val.String())
		if err != nil {
			return decimal.Decimal{}, errors.New("must be numeric")
		}
		return d, nil
	}
	return decimal.Decimal{}, errors.New("must be numeric")
}
