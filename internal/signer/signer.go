// Package signer implements the signer abstraction: an opaque
// handle that signs messages or EIP-712 typed data, backed either by the
// secrets broker (production) or a local in-process key (tests, single-
// process deployments). Both variants satisfy the same Signer interface;
// callers cannot tell which one they hold.
package signer

import (
	"context"
	"encoding/json"
)

// Signer is the uniform contract every variant implements. The address is
// cached after the first successful lookup — it cannot change for the
// lifetime of a Signer.
type Signer interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error)
	Address(ctx context.Context) (string, error)
}
