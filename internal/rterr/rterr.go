// Package rterr defines the typed error taxonomy shared by every subsystem:
// contract errors, resource errors, policy errors, and integrity errors.
// Invariant errors are not modeled here — they panic at the call site
// instead of being returned.
package rterr

// Kind names one outcome from the closed taxonomy. Gateway clients receive
// {kind, message}; Kind is the "kind" field verbatim.
type Kind string

const (
	KindUnknownMethod      Kind = "unknown_method"
	KindInvalidParams      Kind = "invalid_params"
	KindDeadlineExceeded   Kind = "deadline_exceeded"
	KindCancelled          Kind = "cancelled"
	KindShuttingDown       Kind = "shutting_down"
	KindFramingError       Kind = "framing_error"
	KindClosed             Kind = "closed"
	KindUnknownRole        Kind = "unknown_role"
	KindCapacityExceeded   Kind = "capacity_exceeded"
	KindStartupTimeout     Kind = "startup_timeout"
	KindMessageTooLarge    Kind = "message_too_large"
	KindTaskTimeout        Kind = "task_timeout"
	KindWorkerExited       Kind = "worker_exited"
	KindSchemeForbidden    Kind = "scheme_forbidden"
	KindHostPrivate        Kind = "host_private"
	KindHostDenylisted     Kind = "host_denylisted"
	KindRateLimited        Kind = "rate_limited"
	KindSizeExceeded       Kind = "size_exceeded"
	KindTimeout            Kind = "timeout"
	KindExpired            Kind = "expired"
	KindRejected           Kind = "rejected"
	KindAutoRejectedOverCap Kind = "auto_rejected_over_cap"
	KindBrokerUnavailable  Kind = "broker_unavailable"
	KindCapabilityMissing  Kind = "capability_missing"
	KindAlreadyResolved    Kind = "already_resolved"
	KindWorkspaceEscape    Kind = "workspace_escape"
	KindNotFound           Kind = "not_found"
)

// Error is the uniform typed error every component returns for contract,
// resource, and policy outcomes. Handlers return *Error directly; the
// dispatcher and gateway forward it unchanged.
type Error struct {
	Kind    Kind
	Message string
	// Cause, when set, is an underlying error retained for logs only — it
	// is never serialized to a caller (integrity errors must not leak
	// diagnostics, and even contract/resource errors keep internal detail
	// out of the wire shape).
	Cause error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is supports errors.Is(err, rterr.New(kind, "")) by comparing Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.Kind == t.Kind
}
