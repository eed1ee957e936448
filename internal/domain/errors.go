package domain

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrForbidden         = errors.New("forbidden")
	ErrTransportFailure  = errors.New("transport failure")
	ErrChannelDegraded   = errors.New("realtime channel degraded")
	ErrStaleWrite        = errors.New("stale write")

	ErrNotFound      = errors.New("not_found")
	ErrNoParticipant = errors.New("conversation has no participant")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrValidation    = errors.New("validation error")

	ErrScheduleInPast         = errors.New("scheduled time must be in the future")
	ErrDeliveryBeforeSchedule = errors.New("delivery time must be after scheduled time")
)

// Reason codes exchanged with the backend in the error envelope.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeForbidden         = "FORBIDDEN"
	CodeStaleWrite        = "STALE_WRITE"
	CodeNotFound          = "NOT_FOUND"
	CodeNoParticipant     = "NO_PARTICIPANT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrorForCode maps a backend reason code to its sentinel. Unknown codes map to nil.
func ErrorForCode(code string) error {
	switch code {
	case CodeInvalidTransition:
		return ErrInvalidTransition
	case CodeForbidden:
		return ErrForbidden
	case CodeStaleWrite:
		return ErrStaleWrite
	case CodeNotFound:
		return ErrNotFound
	case CodeNoParticipant:
		return ErrNoParticipant
	case CodeValidation:
		return ErrValidation
	case CodeUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// UserMessage renders err as the reason shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStaleWrite):
		return "This order was already updated. Refresh to see its current state."
	case errors.Is(err, ErrInvalidTransition):
		return "This action is not available for the order in its current state."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrNoParticipant):
		return "No worker has accepted this order yet, so there is nobody to chat with."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNotFound):
		return "The requested item no longer exists."
	case errors.Is(err, ErrValidation), errors.Is(err, ErrScheduleInPast), errors.Is(err, ErrDeliveryBeforeSchedule):
		return "Some fields are invalid: " + err.Error()
	case errors.Is(err, ErrChannelDegraded):
		return "Live chat is unavailable; messages are sent in the background."
	case errors.Is(err, ErrTransportFailure):
		return "The service is unreachable. Please try again."
	}
	return "Something went wrong: " + err.Error()
}
