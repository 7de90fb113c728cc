// Package models holds data types shared across the runtime's subsystems:
// correlation identifiers, event envelopes, and the closed enums fixed at
// compile time.
package models

import "github.com/google/uuid"

// NewCorrelationID generates an opaque short string unique for the lifetime
// of one request. It is used as the in-flight map key by the dispatcher and
// as the task id of sub-agent tasks sent through the gateway.
func NewCorrelationID() string {
	return uuid.NewString()
}
