package http

import (
	"net/http"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/backend/users"
	"github.com/go-chi/chi/v5"
)

func userDTO(a *users.Account) api.UserDTO {
	return api.UserDTO{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}

	token, acc, err := s.users.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusCreated, api.AuthResponse{Success: true, Token: token, User: userDTO(acc)})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := s.decode(r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}

	token, acc, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.AuthResponse{Success: true, Token: token, User: userDTO(acc)})
}

func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	out := make([]api.UserDTO, 0, len(list))
	for _, a := range list {
		out = append(out, userDTO(a))
	}
	respondJSON(w, http.StatusOK, api.UsersResponse{Success: true, Users: out})
}

func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())

	if err := s.users.Delete(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.Envelope[any]{Success: true})
}
