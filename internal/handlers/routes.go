package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/virtualbank/backend/internal/middleware"
)

// Routes builds the /api/v1 subrouter.
func Routes(users *UserHandler, accounts *AccountHandler, guard *middleware.IdentityGuard) chi.Router {
	r := chi.NewRouter()

	// Public endpoints (no auth required)
	r.Post("/users/register", users.Register)
	r.Post("/users/login", users.Login)
	r.Post("/users/logout", users.Logout)

	// Owner-only endpoints
	r.Route("/users/{uid}", func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.Use(middleware.RequireOwner)

		r.Post("/deposit", accounts.Deposit)
		r.Post("/withdraw", accounts.Withdraw)
		r.Get("/balance", accounts.GetBalance)
		r.Get("/transactions", accounts.ListTransactions)
	})

	return r
}
