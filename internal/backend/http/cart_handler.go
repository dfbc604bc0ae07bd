package http

import (
	"net/http"
	"strconv"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

func respondCart(w http.ResponseWriter, status int, c *domain.Cart) {
	w.Header().Set(api.HeaderETag, strconv.Quote(strconv.FormatInt(c.Version, 10)))
	respondData(w, status, api.FromCart(c))
}

func (s *Server) GetCart(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	c, err := s.carts.Get(r.Context(), u.ID)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (s *Server) AddItem(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	var req api.CartItemRequest
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	version, err := ifMatch(r)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	c, err := s.carts.AddItem(r.Context(), u.ID, req.ProductID, req.Quantity, version)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (s *Server) UpdateItem(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	var req api.CartItemRequest
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	version, err := ifMatch(r)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	c, err := s.carts.UpdateItem(r.Context(), u.ID, req.ProductID, req.Quantity, version)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (s *Server) RemoveItem(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	version, err := ifMatch(r)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	c, err := s.carts.RemoveItem(r.Context(), u.ID, chi.URLParam(r, "productId"), version)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (s *Server) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	var req api.PromoRequest
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	version, err := ifMatch(r)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	c, err := s.carts.ApplyPromo(r.Context(), u.ID, req.Code, version)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (s *Server) ClearPromo(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	version, err := ifMatch(r)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	c, err := s.carts.ClearPromo(r.Context(), u.ID, version)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}
