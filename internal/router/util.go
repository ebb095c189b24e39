package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/award"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	userRepository "github.com/TiggieF/tokenised-lse-sub000/internal/repository/user"
	"github.com/TiggieF/tokenised-lse-sub000/internal/router/middleware"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/user"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

// decodeJSON reads and unmarshals the request body into T with sane limits and timeouts.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	const maxBody = int64(1 << 20) // 1 MiB
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req T
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, errors.New("empty body")
		}
		return zero, err
	}

	// Ensure there’s no trailing garbage
	if dec.More() {
		return zero, errors.New("multiple JSON values in body")
	}

	return req, nil
}

// writeJSON marshals v and writes it with status and proper headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

// writeJSONError writes a simple error response as JSON.
func writeJSONError(w http.ResponseWriter, status int, err error) {
	type errorResp struct {
		Error   string `json:"error"`
		Status  int    `json:"status"`
		Message string `json:"message,omitempty"`
	}
	writeJSON(w, status, errorResp{
		Error:   http.StatusText(status),
		Status:  status,
		Message: err.Error(),
	})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrInvalidPrice),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidBudget),
		errors.Is(err, order.ErrZeroNotional),
		errors.Is(err, model.ErrInvalidSymbol),
		errors.Is(err, pricefeed.ErrInvalidPrice),
		errors.Is(err, user.ErrInvalidUsername),
		errors.Is(err, user.ErrWeakPassword),
		errors.Is(err, user.ErrInvalidAmount),
		errors.Is(err, award.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, userRepository.ErrInvalidCredentials),
		errors.Is(err, middleware.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrNotOwner),
		errors.Is(err, award.ErrOnlyAdmin),
		errors.Is(err, award.ErrOnlyDex),
		errors.Is(err, award.ErrNotWinner),
		errors.Is(err, user.ErrFaucetDisabled),
		errors.Is(err, errAdminOnly):
		return http.StatusForbidden
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrUnknownToken),
		errors.Is(err, pricefeed.ErrNoPrice),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, order.ErrOrderNotActive),
		errors.Is(err, award.ErrAlreadyClaimed),
		errors.Is(err, award.ErrAlreadyFinalized),
		errors.Is(err, award.ErrEpochNotEnded),
		errors.Is(err, user.ErrUsernameTaken),
		errors.Is(err, registry.ErrAlreadyListed):
		return http.StatusConflict
	case errors.Is(err, order.ErrNoFill),
		errors.Is(err, order.ErrStalePrice),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

var errAdminOnly = errors.New("admin only")

// trader returns the authenticated account, or writes 401.
func trader(w http.ResponseWriter, r *http.Request) (model.AccountID, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("not authenticated"))
		return 0, false
	}
	return model.AccountID(claims.UserId), true
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}
