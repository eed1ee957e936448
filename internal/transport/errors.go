package transport

import (
	"errors"
	"fmt"
	"net/http"

	"servicemarket/internal/domain"
)

var errServerStatus = errors.New("server error status")

// APIError is a structured failure returned by the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps the reason code, or the HTTP status when the code is unknown, to a domain sentinel.
func (e *APIError) Unwrap() error {
	if err := domain.ErrorForCode(e.Code); err != nil {
		return err
	}
	switch {
	case e.Status >= http.StatusInternalServerError:
		return domain.ErrTransportFailure
	case e.Status == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return domain.ErrForbidden
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status == http.StatusConflict:
		return domain.ErrStaleWrite
	case e.Status == http.StatusBadRequest, e.Status == http.StatusUnprocessableEntity:
		return domain.ErrValidation
	}
	return nil
}
