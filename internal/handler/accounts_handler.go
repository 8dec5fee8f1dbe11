package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Accounts Handlers
// ============================================================

func listAccountsHandler(svc *service.Lifecycle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts")
		defer span.End()

		accounts, err := svc.List(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func createAccountHandler(svc *service.Lifecycle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts")
		defer span.End()

		var req domain.CreateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.OwnerID = strings.TrimSpace(req.OwnerID)
		if req.OwnerID == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "customerId", Message: "is required"}, logger)
			return
		}

		account, err := svc.Create(ctx, req.OwnerID, req.Balance, req.TypeAccount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func getAccountHandler(svc *service.Lifecycle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{id}")
		defer span.End()

		account, err := svc.Get(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func getAccountByNumberHandler(svc *service.Lifecycle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/byAccountNumber/{accountNumber}")
		defer span.End()

		account, err := svc.GetByNumber(ctx, chi.URLParam(r, "accountNumber"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func listAccountsByCustomerHandler(svc *service.Lifecycle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/customer/{customerId}")
		defer span.End()

		accounts, err := svc.ListByOwner(ctx, chi.URLParam(r, "customerId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func deleteAccountHandler(svc *service.Lifecycle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /accounts/{id}")
		defer span.End()

		conf, err := svc.Delete(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, conf)
	}
}

// ============================================================
// Balance Handlers
// ============================================================

func depositHandler(engine *service.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /accounts/{id}/deposit")
		defer span.End()

		amount, err := parseAmount(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		account, err := engine.Deposit(ctx, chi.URLParam(r, "id"), amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func withdrawHandler(engine *service.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /accounts/{id}/withdraw")
		defer span.End()

		amount, err := parseAmount(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		account, err := engine.Withdraw(ctx, chi.URLParam(r, "id"), amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func depositByNumberHandler(adapter *service.NumberAdapter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/tDeposit")
		defer span.End()

		var req domain.NumberTransactionRequest
		if err := decodeNumberRequest(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		account, err := adapter.DepositByNumber(ctx, req.AccountNumber, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func withdrawByNumberHandler(adapter *service.NumberAdapter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/tWithdrawal")
		defer span.End()

		var req domain.NumberTransactionRequest
		if err := decodeNumberRequest(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		account, err := adapter.WithdrawByNumber(ctx, req.AccountNumber, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func decodeNumberRequest(r *http.Request, req *domain.NumberTransactionRequest) error {
	if err := decodeJSON(r, req); err != nil {
		return err
	}
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	if req.AccountNumber == "" {
		return &domain.ErrValidation{Field: "accountNumber", Message: "is required"}
	}
	return nil
}
