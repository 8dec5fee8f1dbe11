package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/account-ms/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// parseAmount reads the "amount" query parameter. Sign checks are left to the
// engine so negative amounts surface as ErrInvalidAmount.
func parseAmount(r *http.Request) (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("amount"))
	if raw == "" {
		return decimal.Zero, &domain.ErrValidation{Field: "amount", Message: "query parameter is required"}
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &domain.ErrValidation{Field: "amount", Message: "must be a decimal number"}
	}
	return amount, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var ownerNotFound *domain.ErrOwnerNotFound
	var invalidBalance *domain.ErrInvalidBalance
	var invalidAmount *domain.ErrInvalidAmount
	var insufficientFunds *domain.ErrInsufficientFunds
	var validation *domain.ErrValidation
	var duplicate *domain.ErrDuplicate
	var exhausted *domain.ErrAllocationExhausted
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService
	var unavailable *domain.ErrStoreUnavailable

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ownerNotFound):
		logger.Debug("owner not found", zap.String("customer_id", ownerNotFound.OwnerID))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalidBalance):
		logger.Debug("invalid balance", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidAmount):
		logger.Debug("invalid amount", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficientFunds):
		logger.Warn("insufficient funds",
			zap.String("variant", string(insufficientFunds.Variant)),
			zap.String("available", insufficientFunds.Available.String()),
			zap.String("required", insufficientFunds.Required.String()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &duplicate):
		logger.Debug("duplicate resource", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &exhausted):
		logger.Error("account number allocation exhausted", zap.Int("attempts", exhausted.Attempts))
		writeError(w, http.StatusInternalServerError, "could not allocate a free account number, retry later")
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "customer service unavailable")
	case errors.As(err, &unavailable):
		logger.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "account store unavailable")
	default:
		logger.Error("unexpected error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
