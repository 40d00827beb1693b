package services

import (
	"errors"
	"net/http"

	apperrors "github.com/virtualbank/backend/internal/errors"
)

// StatusForError maps a domain error to the HTTP status and message sent to clients.
func StatusForError(err error) (int, string) {
	switch {
	case apperrors.IsInvalidAmount(err):
		return http.StatusBadRequest, "Amount must be a positive integer."
	case apperrors.IsNotFound(err):
		return http.StatusNotFound, "User not found"
	case apperrors.IsAlreadyExists(err):
		return http.StatusConflict, "Account already exists"
	case apperrors.IsConflict(err):
		return http.StatusConflict, "Account is busy, please retry"
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	default:
		return http.StatusInternalServerError, "An Internal Error Occurred"
	}
}

// SendDomainError writes err using StatusForError.
func SendDomainError(w http.ResponseWriter, err error) {
	status, message := StatusForError(err)
	SendErrorResponse(w, message, status, nil)
}
