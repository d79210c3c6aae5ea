package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized is returned when the caller cannot be authenticated
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a user is not allowed to perform an action
	ErrForbidden = errors.New("forbidden")

	// ErrSignatureInvalid is returned when a webhook fails signature verification.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrKYCNotVerified is returned when the payer has no approved KYC record.
	ErrKYCNotVerified = errors.New("kyc not verified")
	// ErrLimitExceeded is returned when a send would exceed the monthly KYC limit.
	ErrLimitExceeded = errors.New("monthly send limit exceeded")
	// ErrGateway is returned when an outbound payment gateway call fails or times out.
	ErrGateway = errors.New("payment gateway error")
	// ErrConflict is returned when a gateway reports a terminal status that
	// contradicts the one already recorded.
	ErrConflict = errors.New("conflicting terminal status")
	// ErrInvalidTransition is returned for status changes the payment lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownGateway is returned for providers that have no registered adapter.
	ErrUnknownGateway = errors.New("unknown payment gateway")
)
