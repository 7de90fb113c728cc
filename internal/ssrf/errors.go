package ssrf

import "github.com/nexuscore/agentrt/internal/rterr"

// New builds a generic malformed-input error. Callers that need a taxonomy
// kind (host_private, host_denylisted, ...) use rterr.New directly; this
// helper exists for the address-parsing internals above which don't carry a
// caller-visible kind of their own.
func New(message string) error {
	return rterr.New(rterr.KindInvalidParams, message)
}
