package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storefront/session"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedIn(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(nil)
	require.NoError(t, s.Login("tok-1", domain.User{ID: "u1", Username: "ann", Role: "user"}))
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetCart_SendsBearerAndParsesCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cart/get", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("ETag", `"4"`)
		_, _ = io.WriteString(w, `{"success":true,"data":{"_id":"c1","userId":"u1","version":4,
			"items":[{"productId":{"_id":"p1","name":"Tee","price":"50.00"},"quantity":2}],
			"totalItems":2,"totalPrice":"100.00","discount":"0.00"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, loggedIn(t))
	cart, err := c.GetCart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), cart.Version)
	assert.Equal(t, 2, cart.TotalItems())
	assert.Equal(t, "100", cart.TotalPrice().String())
}

func TestAuthRequired_NoNetworkCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(srv.URL, session.New(nil))
	ctx := context.Background()

	_, err := c.GetCart(ctx)
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.ErrorIs(t, c.AddItem(ctx, "p1", 1, AnyVersion), ErrAuthRequired)
	_, err = c.PlaceOrder(ctx, domain.ShippingAddress{}, "k")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Zero(t, calls.Load())
}

func TestUnauthorizedResponse_MapsToAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, api.ErrorBody{Message: "token expired", Code: "unauthorized"})
	}))
	defer srv.Close()

	sess := loggedIn(t)
	c := New(srv.URL, sess)
	_, err := c.GetCart(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, ok := sess.Token()
	assert.False(t, ok, "rejected session is logged out")
	_, ok = sess.User()
	assert.False(t, ok)
	assert.ErrorIs(t, c.AddItem(context.Background(), "p1", 1, AnyVersion), ErrAuthRequired)
}

func TestUnauthorizedPublicCall_KeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, api.ErrorBody{Message: "invalid credentials", Code: "unauthorized"})
	}))
	defer srv.Close()

	sess := loggedIn(t)
	_, err := New(srv.URL, sess).ListProducts(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, ok := sess.Token()
	assert.True(t, ok, "unauthenticated calls leave the session alone")
}

func TestServerRejection_MessageVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, api.ErrorBody{Message: "Product not found", Code: "not_found"})
	}))
	defer srv.Close()

	err := New(srv.URL, loggedIn(t)).AddItem(context.Background(), "nope", 1, AnyVersion)

	var rej *ServerRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusBadRequest, rej.Status)
	assert.Equal(t, "Product not found", rej.Error())
	assert.False(t, IsRetryable(err))
}

func TestVersionConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"3"`, r.Header.Get("If-Match"))
		writeJSON(w, http.StatusConflict, api.ErrorBody{Message: "cart changed", Code: CodeVersionConflict})
	}))
	defer srv.Close()

	err := New(srv.URL, loggedIn(t)).UpdateItem(context.Background(), "p1", 2, 3)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestAnyVersion_OmitsIfMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-Match"))
		assert.Equal(t, "/cart/remove/p%201", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, api.Envelope[any]{Success: true})
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, loggedIn(t)).RemoveItem(context.Background(), "p 1", AnyVersion))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, loggedIn(t)).GetCart(context.Background())
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "get cart", ne.Op)
	assert.True(t, IsRetryable(err))
}

func TestUnreadableBody_IsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	_, err := New(srv.URL, loggedIn(t)).GetCart(context.Background())
	var ne *NetworkError
	assert.ErrorAs(t, err, &ne)
}

func TestPlaceOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{}, body["items"])
		assert.Equal(t, "cash_on_delivery", body["paymentMethod"])
		addr := body["shippingAddress"].(map[string]any)
		assert.Equal(t, "Jane Doe", addr["fullName"])

		writeJSON(w, http.StatusCreated, api.Envelope[api.OrderCreated]{Success: true, Data: api.OrderCreated{ID: "o-9"}})
	}))
	defer srv.Close()

	id, err := New(srv.URL, loggedIn(t)).PlaceOrder(context.Background(), domain.ShippingAddress{FullName: "Jane Doe"}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "o-9", id)
}

func TestLogin_PopulatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, api.AuthResponse{
			Success: true,
			Token:   "jwt",
			User:    api.UserDTO{ID: "u7", Username: "root", Email: "r@x.io", Role: "ADMIN"},
		})
	}))
	defer srv.Close()

	sess := session.New(nil)
	u, err := New(srv.URL, sess).Login(context.Background(), "r@x.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)
	assert.True(t, sess.IsAdmin())
	tok, _ := sess.Token()
	assert.Equal(t, "jwt", tok)
}

func TestListProducts_Public(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"success":true,"data":[{"_id":"p1","name":"Tee","price":19.99,"category":"men"}]}`)
	}))
	defer srv.Close()

	products, err := New(srv.URL, session.New(nil)).ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "19.99", products[0].Price.StringFixed(2))
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, api.ErrorBody{Message: "down"})
	}))
	defer srv.Close()

	c := New(srv.URL, loggedIn(t), WithBreakerSettings(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))
	ctx := context.Background()

	for range 2 {
		_, err := c.GetCart(ctx)
		var rej *ServerRejection
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "down", rej.Message)
		assert.True(t, IsRetryable(err))
	}

	_, err := c.GetCart(ctx)
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, api.ErrorBody{Message: "bad"})
	}))
	defer srv.Close()

	c := New(srv.URL, loggedIn(t), WithBreakerSettings(gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
	}))
	for range 3 {
		_ = c.AddItem(context.Background(), "p", 1, AnyVersion)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestParseETag(t *testing.T) {
	v, ok := parseETag(`W/"12"`)
	assert.True(t, ok)
	assert.Equal(t, int64(12), v)

	_, ok = parseETag("")
	assert.False(t, ok)
	_, ok = parseETag(`"abc"`)
	assert.False(t, ok)
}
