package errors

import "fmt"

const (
	ErrNotFound          = "NOT_FOUND"
	ErrPrecondition      = "PRECONDITION"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrConflict          = "CONFLICT"
	ErrValidation        = "VALIDATION"
	ErrUnavailable       = "UNAVAILABLE"
	ErrInternal          = "INTERNAL"
)

type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// --- Generic ---

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", entity, id)}
}

func NewPrecondition(msg string) *DomainError {
	return &DomainError{Code: ErrPrecondition, Message: msg}
}

func NewInvalidTransition(from, to string) *DomainError {
	return &DomainError{Code: ErrInvalidTransition, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

func NewUnauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrUnauthorized, Message: msg}
}

func NewForbidden(msg string) *DomainError {
	return &DomainError{Code: ErrForbidden, Message: msg}
}

func NewConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConflict, Message: msg}
}

func NewValidation(msg string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg}
}

func NewUnavailable(msg string, err error) *DomainError {
	return &DomainError{Code: ErrUnavailable, Message: msg, Err: err}
}

func NewInternal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrInternal, Message: msg, Err: err}
}

// --- Drone ---

func DroneNotFound(id string) *DomainError {
	return NewNotFound("drone", id)
}

func DroneNotAvailable(id string) *DomainError {
	return NewPrecondition(fmt.Sprintf("drone %s is not idle and active", id))
}

func DroneInvalidTransition(from, to string) *DomainError {
	return NewInvalidTransition(from, to)
}

func DroneNotAwaitingConfirmation(id string) *DomainError {
	return NewPrecondition(fmt.Sprintf("drone %s is not awaiting delivery confirmation", id))
}

// --- Order ---

func OrderNotFound(id string) *DomainError {
	return NewNotFound("order", id)
}

func OrderMissingLocations(id string) *DomainError {
	return NewPrecondition(fmt.Sprintf("order %s is missing a restaurant or delivery location", id))
}

// AssignmentConflict means another drone already holds the order. It is
// expected during concurrent sweeps; the caller rolls back and moves on.
func AssignmentConflict(orderID string) *DomainError {
	return NewConflict(fmt.Sprintf("order %s is already assigned to another drone", orderID))
}

// --- Assignment ---

func AssignmentNotFound(orderID string) *DomainError {
	return NewNotFound("assignment", orderID)
}

func StoreUnavailable(op string, err error) *DomainError {
	return NewUnavailable(fmt.Sprintf("order record store: %s failed", op), err)
}
