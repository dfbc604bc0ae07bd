// Package http serves the storefront REST API of the reference backend.
package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/backend/cart"
	"github.com/fjod/storefront/internal/backend/catalog"
	"github.com/fjod/storefront/internal/backend/orders"
	"github.com/fjod/storefront/internal/backend/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Carts   *cart.Service
	Catalog catalog.Repository
	Orders  *orders.Service
	Users   *users.Service
	Tokens  *users.Tokens
	Log     *zap.Logger
}

type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Server struct {
	carts    *cart.Service
	catalog  catalog.Repository
	orders   *orders.Service
	users    *users.Service
	tokens   *users.Tokens
	validate *validator.Validate
	log      *zap.Logger
}

// NewRouter wires every route behind the shared middleware stack.
func NewRouter(deps Deps, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20 // 1MB
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		orders:   deps.Orders,
		users:    deps.Users,
		tokens:   deps.Tokens,
		validate: newValidator(),
		log:      log,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(BodyLimit(opts.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", s.ListProducts)
	r.Get("/products/{id}", s.GetProduct)
	r.Post("/user/signup", s.Signup)
	r.Post("/user/login", s.Login)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(s.tokens, s.users))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/get", s.GetCart)
			r.Post("/add", s.AddItem)
			r.Put("/update", s.UpdateItem)
			r.Delete("/remove/{productId}", s.RemoveItem)
			r.Post("/promo", s.ApplyPromo)
			r.Delete("/promo", s.ClearPromo)
		})

		r.Post("/order", s.PlaceOrder)
		r.Get("/order/{id}", s.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/orders", s.ListOrders)
			r.Post("/products", s.CreateProduct)
			r.Delete("/products/{id}", s.DeleteProduct)
			r.Get("/user/users", s.ListUsers)
			r.Delete("/user/users/{id}", s.DeleteUser)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
