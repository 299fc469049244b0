package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrMalformedResponse = errors.New("malformed venue response")
	ErrNoSnapshot        = errors.New("no snapshot available")
)

// ErrorKind classifies a VenueError.
type ErrorKind string

const (
	// TransportError covers connection failures, timeouts and cancellation.
	TransportError ErrorKind = "transport"
	// ServerError is a non-2xx answer from the venue.
	ServerError ErrorKind = "server"
)

// VenueError is the normalized failure shape returned by the venue client.
// Callers never see a raw transport error.
type VenueError struct {
	Kind    ErrorKind
	Status  int // HTTP status, zero for transport errors
	Message string
	Cause   error
}

func (e *VenueError) Error() string {
	if e.Kind == ServerError {
		return fmt.Sprintf("venue: %s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("venue: %s error: %s", e.Kind, e.Message)
}

func (e *VenueError) Unwrap() error { return e.Cause }

// Is maps well-known HTTP statuses onto the domain sentinels so callers can
// write errors.Is(err, domain.ErrUnauthorized).
func (e *VenueError) Is(target error) bool {
	if e.Kind != ServerError {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// IsTransport reports whether err is a venue transport failure.
func IsTransport(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Kind == TransportError
}

// ServerMessage returns the message the venue sent with a non-2xx response.
func ServerMessage(err error) (string, bool) {
	var ve *VenueError
	if errors.As(err, &ve) && ve.Kind == ServerError && ve.Message != "" {
		return ve.Message, true
	}
	return "", false
}

// ValidationError is a local, pre-network rejection of a trade request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidOrder }

// SubmitError is returned when a validated trade could not be submitted.
type SubmitError struct {
	Message string
	Cause   error
}

func (e *SubmitError) Error() string { return "submit: " + e.Message }

func (e *SubmitError) Unwrap() error { return e.Cause }
