package models

import "errors"

// Pipeline error taxonomy. Provider and transport specific errors are translated
// into these at the component boundary and never leak past it.
var (
	ErrRateLimited         = errors.New("rate limited")
	ErrIneligible          = errors.New("message not addressed to the bot")
	ErrLookupTimeout       = errors.New("lookup timed out")
	ErrLookupDenied        = errors.New("lookup denied")
	ErrGenerationTimeout   = errors.New("generation timed out")
	ErrGenerationProvider  = errors.New("generation provider error")
	ErrUnknownPersona      = errors.New("unknown persona")
	ErrInternalAggregation = errors.New("context aggregation failed")

	// ErrUndeliverable is reported by the transport when the conversation can no longer receive messages
	ErrUndeliverable = errors.New("conversation undeliverable")
)
