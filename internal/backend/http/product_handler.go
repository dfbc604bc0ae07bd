package http

import (
	"net/http"

	"github.com/fjod/storefront/internal/api"
	"github.com/go-chi/chi/v5"
)

func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.List(r.Context())
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	out := make([]api.ProductDTO, 0, len(products))
	for _, p := range products {
		out = append(out, api.FromProduct(p))
	}
	respondData(w, http.StatusOK, out)
}

func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondData(w, http.StatusOK, api.FromProduct(p))
}

func (s *Server) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req api.ProductDTO
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	if req.Price.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_request", "price must not be negative")
		return
	}

	p, err := s.catalog.Create(r.Context(), req.ToProduct())
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondData(w, http.StatusCreated, api.FromProduct(p))
}

func (s *Server) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.Envelope[any]{Success: true})
}
