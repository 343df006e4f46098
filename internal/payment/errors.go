package payment

import "errors"

// ErrInvalidRequest is returned when a completion is missing its quote or
// continuation handle.
var ErrInvalidRequest = errors.New("invalid payment request")

type IncomingPaymentCreationError struct {
	Err error
}

func (e *IncomingPaymentCreationError) Error() string {
	return "failed to create incoming payment: " + e.Err.Error()
}

func (e *IncomingPaymentCreationError) Unwrap() error { return e.Err }

type QuoteCreationError struct {
	Err error
}

func (e *QuoteCreationError) Error() string {
	return "failed to create quote: " + e.Err.Error()
}

func (e *QuoteCreationError) Unwrap() error { return e.Err }

type OutgoingPaymentCreationError struct {
	Err error
}

func (e *OutgoingPaymentCreationError) Error() string {
	return "failed to create outgoing payment: " + e.Err.Error()
}

func (e *OutgoingPaymentCreationError) Unwrap() error { return e.Err }
