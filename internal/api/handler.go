package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/shop-checkout/internal/basket"
	"github.com/safar/shop-checkout/internal/checkout"
	"github.com/safar/shop-checkout/internal/identity"
	"github.com/safar/shop-checkout/internal/models"
	"github.com/safar/shop-checkout/internal/payment"
	"github.com/safar/shop-checkout/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Checkout interface {
	CreateOrder(ctx context.Context, sessionID string, buyerID int64) (*models.Order, error)
	GetOrder(ctx context.Context, buyerID, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error)
	ConfirmOrder(ctx context.Context, req checkout.ConfirmRequest) (*models.Order, error)
	PayOrder(ctx context.Context, req checkout.PayRequest) (*checkout.PayResult, error)
}

type Baskets interface {
	Get(ctx context.Context, sessionID string) (*basket.Basket, error)
	Add(ctx context.Context, sessionID string, productID int64, count int) (*basket.Basket, error)
	Remove(ctx context.Context, sessionID string, productID int64, count int) (*basket.Basket, error)
}

type Catalog interface {
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	checkout Checkout
	baskets  Baskets
	catalog  Catalog
	db       Pinger
	format   Formatter
}

func NewHandler(c Checkout, b Baskets, catalog Catalog, db Pinger, format Formatter) *Handler {
	return &Handler{checkout: c, baskets: b, catalog: catalog, db: db, format: format}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}

func orderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func buyerID(r *http.Request) int64 {
	buyer, _ := identity.BuyerFrom(r.Context())
	return buyer.ID
}

func (h *Handler) writeBasket(w http.ResponseWriter, r *http.Request, status int, b *basket.Basket) {
	products, err := h.catalog.GetProductsByIDs(r.Context(), b.ProductIDs())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, stale := toBasketResponse(b, products)
	for _, id := range stale {
		slog.ErrorContext(r.Context(), "basket references missing product", "product_id", id)
	}
	writeJSON(w, status, resp)
}

func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	b, err := h.baskets.Get(r.Context(), identity.SessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeBasket(w, r, http.StatusOK, b)
}

func (h *Handler) AddToBasket(w http.ResponseWriter, r *http.Request) {
	var req basketRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	b, err := h.baskets.Add(r.Context(), identity.SessionFrom(r.Context()), req.ID, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeBasket(w, r, http.StatusCreated, b)
}

func (h *Handler) RemoveFromBasket(w http.ResponseWriter, r *http.Request) {
	var req basketRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	b, err := h.baskets.Remove(r.Context(), identity.SessionFrom(r.Context()), req.ID, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeBasket(w, r, http.StatusOK, b)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Limit must be between 1 and %d", maxPageSize))
			return
		}
		limit = n
	}

	page, err := h.checkout.ListOrders(r.Context(), buyerID(r), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.format.orderList(page))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.CreateOrder(r.Context(), identity.SessionFrom(r.Context()), buyerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderIDResponse{OrderID: order.ID})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}

	order, err := h.checkout.GetOrder(r.Context(), buyerID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.format.order(order, true))
}

func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}

	var req confirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	order, err := h.checkout.ConfirmOrder(r.Context(), checkout.ConfirmRequest{
		OrderID:      id,
		BuyerID:      buyerID(r),
		DeliveryType: models.DeliveryType(req.DeliveryType),
		PaymentType:  models.PaymentType(req.PaymentType),
		City:         req.City,
		Address:      req.Address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderIDResponse{OrderID: order.ID})
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}

	var card payment.Card
	if err := decode(r, &card); err != nil {
		writeError(w, r, err)
		return
	}

	_, err := h.checkout.PayOrder(r.Context(), checkout.PayRequest{
		OrderID:   id,
		BuyerID:   buyerID(r),
		SessionID: identity.SessionFrom(r.Context()),
		Card:      card,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
