package domain

import "errors"

// Topology errors. Fatal at load time.
var (
	// ErrInvalidPeerTopology is returned when a declared connection violates the adjacency rule
	// or references an unknown neuron.
	ErrInvalidPeerTopology = errors.New("invalid peer topology")
)

// Routing errors. Recoverable by the sender.
var (
	// ErrInvalidRoute is returned when the destination is not a registered peer in the signal's direction.
	ErrInvalidRoute = errors.New("invalid route")
	// ErrRouteUnavailable is returned when the destination is remote and no transport is configured.
	ErrRouteUnavailable = errors.New("route unavailable")
	// ErrRouteCongested is returned when the destination inbox is full.
	ErrRouteCongested = errors.New("route congested")
)

// Backend errors. Recovered through the mandatory Mock fallback where the mode allows it.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBudgetExceeded     = errors.New("budget exceeded")
	ErrRateLimited        = errors.New("rate limited")
	ErrUpstreamFailure    = errors.New("upstream failure")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrCircuitOpen        = errors.New("circuit open")
	// ErrMockMisconfigured is returned when no mock rule matches and no default is configured.
	ErrMockMisconfigured = errors.New("mock backend misconfigured")
)

// Neuron and storage errors.
var (
	ErrContextLookupFailed = errors.New("context lookup failed")
	ErrDeadlineExceeded    = errors.New("deadline exceeded")
	// ErrMalformedGradient is returned for gradients with a missing classification or out of range scalars.
	ErrMalformedGradient = errors.New("malformed gradient")
	// ErrInvalidSignal is returned when a signal fails structural validation.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrInvalidInput is returned when submitted content is rejected before routing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineStopped is returned when submitting to an engine that is not running.
	ErrEngineStopped = errors.New("engine stopped")
)

// ErrInvalidEntry is returned when a memory entry is missing its partition or kind.
var ErrInvalidEntry = errors.New("invalid memory entry")
