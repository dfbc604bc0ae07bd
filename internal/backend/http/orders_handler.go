package http

import (
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/backend/orders"
	"github.com/go-chi/chi/v5"
)

const maxIdempotencyKeyLen = 128

// PlaceOrder answers 201 for a new order and 200 when the Idempotency-Key
// replays an earlier one.
func (s *Server) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	var req api.PlaceOrderRequest
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(api.HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		respondError(w, http.StatusBadRequest, "invalid_request", "Idempotency-Key is too long")
		return
	}

	order, created, err := s.orders.PlaceOrder(r.Context(), orders.PlaceRequest{
		UserID:          u.ID,
		IdempotencyKey:  key,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondData(w, status, api.OrderCreated{ID: order.ID.String()})
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	order, err := s.orders.Get(r.Context(), u.ID, chi.URLParam(r, "id"), u.IsAdmin())
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondData(w, http.StatusOK, api.FromOrder(order, s.users.Lookup(r.Context(), order.UserID)))
}

func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.orders.List(r.Context())
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	out := make([]api.OrderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, api.FromOrder(o, s.users.Lookup(r.Context(), o.UserID)))
	}
	respondData(w, http.StatusOK, out)
}
