package models

import "errors"

// Domain-level sentinel errors for the coordination core.
// These carry no HTTP-specific information.

var (
	// ErrAlreadyClaimed indicates another identity claimed the session first.
	ErrAlreadyClaimed = errors.New("session already claimed")

	// ErrClaimNotAllowed indicates claim() was invoked without a positive
	// eligibility result.
	ErrClaimNotAllowed = errors.New("claim not allowed")

	// ErrClaimInFlight indicates a claim attempt was rejected because one
	// is already in flight.
	ErrClaimInFlight = errors.New("claim already in flight")

	// ErrNotConnected indicates an outbound send while the transport is
	// not connected.
	ErrNotConnected = errors.New("transport not connected")

	// ErrEmptyMessage indicates an outbound message was rejected before
	// transmission because it contained no text.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrReconnectFailed indicates the transport exhausted its reconnect
	// attempts; recovery requires an explicit user action.
	ErrReconnectFailed = errors.New("failed to reconnect")
)
