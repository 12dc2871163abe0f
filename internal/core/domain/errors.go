package domain

import (
	"errors"
	"net/http"

	apperrors "streamhub/pkg/errors"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrIdentityNotFound = errors.New("identity not found")

	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidStreamID = errors.New("invalid stream id")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message too long")

	ErrInsufficientRole     = errors.New("insufficient rights")
	ErrNotAuthenticated     = errors.New("authentication required")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotInRoom            = errors.New("not in stream")
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrRateLimited          = errors.New("rate limit exceeded")

	ErrPersistence = errors.New("persistence failure")
)

// IsViolation reports whether err is a role or state precondition failure.
// These are the failures the disconnect-on-violation policy applies to.
func IsViolation(err error) bool {
	return errors.Is(err, ErrInsufficientRole) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrNotInRoom)
}

// IsAuthFailure reports whether err came from credential verification.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrIdentityNotFound)
}

// ToAppError maps a domain failure to an AppError whose Message is safe to
// send to the client. Unknown errors become a generic internal error.
func ToAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, ErrExpiredToken):
		return apperrors.NewUnauthorizedError("token expired")
	case IsAuthFailure(err):
		return apperrors.NewUnauthorizedError("invalid token")
	case errors.Is(err, ErrNotAuthenticated):
		return apperrors.NewUnauthorizedError(ErrNotAuthenticated.Error())
	case errors.Is(err, ErrInsufficientRole):
		return apperrors.NewForbiddenError(ErrInsufficientRole.Error())
	case errors.Is(err, ErrNotInRoom):
		return apperrors.NewConflictError("join the stream first")
	case errors.Is(err, ErrAlreadyAuthenticated):
		return apperrors.NewConflictError(ErrAlreadyAuthenticated.Error())
	case errors.Is(err, ErrEmptyMessage):
		return apperrors.NewInvalidInputError(ErrEmptyMessage.Error())
	case errors.Is(err, ErrMessageTooLong):
		return apperrors.NewInvalidInputError(ErrMessageTooLong.Error())
	case errors.Is(err, ErrInvalidStreamID):
		return apperrors.NewInvalidInputError("stream ID is required")
	case errors.Is(err, ErrInvalidPayload):
		return apperrors.NewInvalidInputError("invalid payload")
	case errors.Is(err, ErrUnknownMessageType):
		return apperrors.NewInvalidInputError(ErrUnknownMessageType.Error())
	case errors.Is(err, ErrRateLimited):
		return apperrors.NewRateLimitError()
	case errors.Is(err, ErrPersistence):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "failed to process message, try again", http.StatusServiceUnavailable)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}
