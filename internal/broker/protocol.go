// Package broker implements the secrets-broker client: the
// runtime process never holds API keys or private key material directly.
// Every credential-touching operation — LLM completion, embeddings,
// message/typed-data signing, address lookup — crosses a length-prefixed
// JSON IPC boundary to a separate OS process (cmd/secretsbrokerd) that
// alone has the secrets.
package broker

import (
	"encoding/json"
)

// Capability names a privileged operation the broker may grant to the
// runtime process. The broker enumerates its capability set at handshake;
// callers that ask for an ungranted capability get KindCapabilityMissing.
type Capability string

const (
	CapLLMComplete    Capability = "llm_complete"
	CapEmbed          Capability = "embed"
	CapSignMessage    Capability = "sign_message"
	CapSignTypedData  Capability = "sign_typed_data"
	CapGetAddress     Capability = "get_address"
)

// request is the wire shape sent to the broker process: one JSON object
// per frame, each frame prefixed with its 4-byte big-endian length.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the wire shape the broker returns.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CompletionRequest mirrors the runtime's LLM completion parameters; the
// broker is the only process that knows which provider key backs a given
// model.
type CompletionRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []CompletionMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
}

type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type EmbedResult struct {
	Vectors [][]float32 `json:"vectors"`
}

type SignMessageRequest struct {
	KeyID   string `json:"key_id"`
	Message []byte `json:"message"`
}

type SignResult struct {
	Signature []byte `json:"signature"`
}

type SignTypedDataRequest struct {
	KeyID     string          `json:"key_id"`
	TypedData json.RawMessage `json:"typed_data"`
}

type GetAddressRequest struct {
	KeyID string `json:"key_id"`
}

type GetAddressResult struct {
	Address string `json:"address"`
}

type HealthResult struct {
	Healthy      bool         `json:"healthy"`
	Capabilities []Capability `json:"capabilities"`
}
