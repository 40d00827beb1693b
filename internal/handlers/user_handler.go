package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/virtualbank/backend/internal/identity"
	"github.com/virtualbank/backend/internal/middleware"
	"github.com/virtualbank/backend/internal/models"
	"github.com/virtualbank/backend/internal/services"
)

// AccountInitializer creates the ledger account for a new identity.
type AccountInitializer interface {
	CreateAccount(ctx context.Context, uid, email string) (*models.Account, error)
}

// LoginResponse is returned from a successful login
// @Description Login response structure
type LoginResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	UID   string `json:"uid" example:"8c5f6a1e-2b7d-4c1b-9f3a-0d2e4b6a8c10"`
}

type UserHandler struct {
	identities identity.Provider
	accounts   AccountInitializer
	validator  *services.ValidationHelper
}

func NewUserHandler(identities identity.Provider, accounts AccountInitializer) *UserHandler {
	return &UserHandler{
		identities: identities,
		accounts:   accounts,
		validator:  services.NewValidationHelper(),
	}
}

// Register creates an identity and its ledger account
// @Summary Register a new user
// @Description Create an identity and initialize its account with a zero balance
// @Tags users
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration request"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /users/register [post]
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		log.Printf("[USERS] Register - Decode error: %v", err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	uid, err := h.identities.CreateIdentity(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Printf("[USERS] Register - Identity creation failed for %s: %v", req.Email, err)
		services.SendDomainError(w, err)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), uid, req.Email)
	if err != nil {
		log.Printf("[USERS] Register - Account initialization failed for uid %s: %v", uid, err)
		if delErr := h.identities.DeleteIdentity(context.WithoutCancel(r.Context()), uid); delErr != nil {
			log.Printf("[USERS] Register - Failed to remove orphaned identity %s: %v", uid, delErr)
		}
		services.SendDomainError(w, err)
		return
	}

	services.SendJSON(w, http.StatusCreated, account)
}

// Login exchanges credentials for a bearer token
// @Summary Login user
// @Description Authenticate with email and password
// @Tags users
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /users/login [post]
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	token, uid, err := h.identities.IssueToken(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Printf("[USERS] Login failed for %s from IP %s: %v", req.Email, r.RemoteAddr, err)
		services.SendDomainError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, LoginResponse{Token: token, UID: uid})
}

// Logout revokes the caller's token
// @Summary Logout user
// @Description Revoke the bearer token presented with the request
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /users/logout [post]
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := h.identities.Revoke(r.Context(), token); err != nil {
		log.Printf("[USERS] Logout failed: %v", err)
		services.SendDomainError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
