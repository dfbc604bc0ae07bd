package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/backend/cart"
	"github.com/fjod/storefront/internal/backend/catalog"
	"github.com/fjod/storefront/internal/backend/orders"
	"github.com/fjod/storefront/internal/backend/users"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// requestError is a malformed or invalid request body.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

var errBadIfMatch = &requestError{msg: "If-Match must be a quoted cart version"}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &requestError{msg: "invalid JSON body"}
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate request: %w", err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return &requestError{msg: "invalid fields: " + strings.Join(fields, ", ")}
	}
	return nil
}

// ifMatch returns the version precondition of a cart mutation. A missing
// header or "*" means any version.
func ifMatch(r *http.Request) (int64, error) {
	tag := strings.TrimSpace(r.Header.Get(api.HeaderIfMatch))
	if tag == "" || tag == "*" {
		return cart.AnyVersion, nil
	}
	tag = strings.TrimPrefix(tag, "W/")
	if s, err := strconv.Unquote(tag); err == nil {
		tag = s
	}
	v, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || v < 0 {
		return 0, errBadIfMatch
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondData[T any](w http.ResponseWriter, status int, data T) {
	respondJSON(w, status, api.Envelope[T]{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, api.ErrorBody{Success: false, Message: message, Code: code})
}

// handleError translates service errors into HTTP responses.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		httpStatus int
		code       string
		verr       *domain.ValidationError
		rerr       *requestError
		tooLarge   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &verr):
		httpStatus, code = http.StatusBadRequest, "validation_failed"
	case errors.As(err, &rerr):
		httpStatus, code = http.StatusBadRequest, "invalid_request"
	case errors.As(err, &tooLarge):
		httpStatus, code = http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, cart.ErrVersionConflict):
		httpStatus, code = http.StatusConflict, api.CodeVersionConflict
	case errors.Is(err, cart.ErrInvalidQuantity):
		httpStatus, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, pricing.ErrUnknownPromo):
		httpStatus, code = http.StatusBadRequest, "invalid_promo"
	case errors.Is(err, orders.ErrEmptyCart):
		httpStatus, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, orders.ErrUnsupportedPayment):
		httpStatus, code = http.StatusBadRequest, "invalid_payment_method"
	case errors.Is(err, users.ErrDeleteSelf):
		httpStatus, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, users.ErrUserNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, users.ErrUserExists):
		httpStatus, code = http.StatusConflict, "already_exists"
	case errors.Is(err, users.ErrInvalidCredentials):
		httpStatus, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	default:
		logger.From(ctx).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
