package handlers

import (
	"context"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	apperrors "github.com/virtualbank/backend/internal/errors"
	"github.com/virtualbank/backend/internal/models"
	"github.com/virtualbank/backend/internal/services"
)

const (
	// 10^19 already exceeds int64
	maxAmountExponent       = 18
	maxAmountFractionDigits = 64
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Ledger is the set of account operations exposed over HTTP.
type Ledger interface {
	Deposit(ctx context.Context, uid string, amount int64) (*models.AccountView, error)
	Withdraw(ctx context.Context, uid string, amount int64) (*models.AccountView, error)
	GetBalance(ctx context.Context, uid string) (*models.BalanceView, error)
	ListTransactions(ctx context.Context, uid string) ([]models.TransactionRecord, error)
}

type AccountHandler struct {
	ledger Ledger
}

func NewAccountHandler(ledger Ledger) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// Deposit credits the account
// @Summary Deposit
// @Description Add a positive integer amount to the account balance
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Account uid"
// @Param request body models.AmountRequest true "Amount"
// @Success 200 {object} models.AccountView
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /users/{uid}/deposit [post]
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Deposit", h.ledger.Deposit)
}

// Withdraw debits the account; the balance may go negative
// @Summary Withdraw
// @Description Subtract a positive integer amount from the account balance
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Account uid"
// @Param request body models.AmountRequest true "Amount"
// @Success 200 {object} models.AccountView
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /users/{uid}/withdraw [post]
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "Withdraw", h.ledger.Withdraw)
}

func (h *AccountHandler) mutate(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, uid string, amount int64) (*models.AccountView, error)) {
	uid := chi.URLParam(r, "uid")

	var req models.AmountRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		log.Printf("[ACCOUNTS] %s - Decode error for uid %s: %v", op, uid, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	amount, err := ParseAmount(string(req.Amount))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	view, err := fn(r.Context(), uid, amount)
	if err != nil {
		log.Printf("[ACCOUNTS] %s failed - uid: %s, amount: %d: %v", op, uid, amount, err)
		services.SendDomainError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, view)
}

// GetBalance returns the current balance and status
// @Summary Balance enquiry
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Account uid"
// @Success 200 {object} models.BalanceView
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /users/{uid}/balance [get]
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	balance, err := h.ledger.GetBalance(r.Context(), uid)
	if err != nil {
		log.Printf("[ACCOUNTS] Balance enquiry failed - uid: %s: %v", uid, err)
		services.SendDomainError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, balance)
}

// ListTransactions returns the account history, most recent first
// @Summary Transaction history
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Account uid"
// @Success 200 {array} models.TransactionRecord
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /users/{uid}/transactions [get]
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	records, err := h.ledger.ListTransactions(r.Context(), uid)
	if err != nil {
		log.Printf("[ACCOUNTS] Transaction listing failed - uid: %s: %v", uid, err)
		services.SendDomainError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, records)
}

// ParseAmount accepts a raw JSON number holding a positive whole value. 100,
// 100.0 and 1e2 are accepted; quoted numbers, fractions, zero, negatives and
// values beyond int64 are not.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] == '"' {
		return 0, apperrors.ErrInvalidAmount
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.Sign() <= 0 {
		return 0, apperrors.ErrInvalidAmount
	}
	// bounds the work IsInteger and Cmp do on extreme exponents
	if exp := amount.Exponent(); exp > maxAmountExponent || exp < -maxAmountFractionDigits {
		return 0, apperrors.ErrInvalidAmount
	}
	if !amount.IsInteger() || amount.GreaterThan(maxAmount) {
		return 0, apperrors.ErrInvalidAmount
	}
	return amount.IntPart(), nil
}
