package app

import (
	"errors"
	"fmt"
	"net/http"

	"letters/api/internal/recommendation"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *recommendation.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), map[string]any{
			"field":  validation.Field,
			"reason": validation.Reason,
		}
	}
	var transition *recommendation.TransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, "INVALID_TRANSITION", "Request cannot change state", map[string]any{
			"from": transition.From,
			"to":   transition.To,
		}
	}

	switch {
	case errors.Is(err, recommendation.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, recommendation.ErrExpired):
		return http.StatusGone, "TOKEN_EXPIRED", "This link has expired", nil
	case errors.Is(err, recommendation.ErrAlreadyCompleted):
		return http.StatusConflict, "ALREADY_COMPLETED", "A letter has already been submitted for this request", nil
	case errors.Is(err, recommendation.ErrDeadlinePassed):
		return http.StatusGone, "DEADLINE_PASSED", "The deadline for this request has passed", nil
	case errors.Is(err, recommendation.ErrInvalidPolicy):
		return http.StatusUnprocessableEntity, "INVALID_POLICY", err.Error(), nil
	case errors.Is(err, recommendation.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Request was changed concurrently", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// mapTokenError is mapError for routes addressed by a recommender token,
// where not found means the link itself is unknown.
func mapTokenError(err error) (status int, code, message string, details any) {
	if errors.Is(err, recommendation.ErrNotFound) {
		return http.StatusNotFound, "TOKEN_NOT_FOUND", "This link is not valid", nil
	}
	return mapError(err)
}
