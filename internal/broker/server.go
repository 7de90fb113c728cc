package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/nexuscore/agentrt/internal/rterr"
)

// ServerConfig configures the secretsbrokerd process: which provider
// backs llm_complete, and which local key (if any) the keyring loads.
// The key fields are filled in by the caller (cmd/secretsbrokerd reads
// them from its environment); ServerConfig itself reads nothing.
type ServerConfig struct {
	SocketPath string

	LLMProvider string // "anthropic", "openai", or "bedrock"

	AnthropicAPIKey    string
	AnthropicModel     string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIEmbedModel   string
	BedrockRegion      string
	BedrockModel       string

	// SigningKeys maps a caller-visible key id to a hex-encoded secp256k1
	// private key. In production these come from a KMS or HSM; the hex
	// path here is the local/dev variant.
	SigningKeys map[string]string
}

// Server is the secretsbrokerd process: it owns every credential and
// exposes only the capability-scoped operations a Client can call.
type Server struct {
	cfg      ServerConfig
	log      *slog.Logger
	keyring  *keyring
	anthropic *anthropicProvider
	openai    *openaiProvider
	bedrock   *bedrockProvider
	caps      []Capability
}

// NewServer wires the providers named in cfg. It performs no network I/O
// beyond Bedrock's credential chain resolution.
func NewServer(ctx context.Context, cfg ServerConfig, log *slog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log, keyring: newKeyring()}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("broker: anthropic provider selected but no API key configured")
		}
		s.anthropic = newAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		s.caps = append(s.caps, CapLLMComplete)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("broker: openai provider selected but no API key configured")
		}
		s.openai = newOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIEmbedModel)
		s.caps = append(s.caps, CapLLMComplete, CapEmbed)
	case "bedrock":
		b, err := newBedrockProvider(ctx, cfg.BedrockRegion, cfg.BedrockModel)
		if err != nil {
			return nil, err
		}
		s.bedrock = b
		s.caps = append(s.caps, CapLLMComplete)
	default:
		return nil, fmt.Errorf("broker: unknown llm provider %q", cfg.LLMProvider)
	}

	// OpenAI is also used purely as the embeddings backend when another
	// provider handles completion, if a key is present.
	if s.openai == nil && cfg.OpenAIAPIKey != "" {
		s.openai = newOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIEmbedModel)
		s.caps = append(s.caps, CapEmbed)
	}

	for keyID, hexKey := range cfg.SigningKeys {
		if err := s.keyring.loadHexKey(keyID, hexKey); err != nil {
			return nil, err
		}
	}
	if len(cfg.SigningKeys) > 0 {
		s.caps = append(s.caps, CapSignMessage, CapSignTypedData, CapGetAddress)
	}

	return s, nil
}

// Serve accepts connections on a Unix domain socket until ctx is cancelled.
// Each connection is handled by a single goroutine; the protocol is
// synchronous request/response, matching Client's one-call-in-flight model.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.cfg.SocketPath)
	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("broker: listen: %w", err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broker: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		var req request
		if err := readFrame(conn, &req); err != nil {
			return
		}
		resp := s.dispatch(ctx, req)
		if err := writeFrame(conn, resp); err != nil {
			s.log.Warn("broker: failed to write response", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	result, err := s.handle(ctx, req)
	if err != nil {
		var rtErr *rterr.Error
		kind := rterr.KindInvalidParams
		if errors.As(err, &rtErr) {
			kind = rtErr.Kind
		}
		return response{ID: req.ID, Error: &wireError{Kind: string(kind), Message: err.Error()}}
	}
	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return response{ID: req.ID, Error: &wireError{Kind: string(rterr.KindFramingError), Message: marshalErr.Error()}}
	}
	return response{ID: req.ID, Result: raw}
}

func (s *Server) handle(ctx context.Context, req request) (any, error) {
	switch req.Method {
	case "health":
		return HealthResult{Healthy: true, Capabilities: s.caps}, nil

	case string(CapLLMComplete):
		var params CompletionRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, "bad llm_complete params", err)
		}
		switch s.cfg.LLMProvider {
		case "anthropic":
			return s.anthropic.complete(ctx, params)
		case "bedrock":
			return s.bedrock.complete(ctx, params)
		default:
			return s.openai.complete(ctx, params)
		}

	case string(CapEmbed):
		if s.openai == nil {
			return nil, rterr.New(rterr.KindCapabilityMissing, "no embedding provider configured")
		}
		var params EmbedRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, "bad embed params", err)
		}
		return s.openai.embed(ctx, params)

	case string(CapSignMessage):
		var params SignMessageRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, "bad sign_message params", err)
		}
		sig, err := s.keyring.signMessage(params.KeyID, params.Message)
		if err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, err.Error(), err)
		}
		return SignResult{Signature: sig}, nil

	case string(CapSignTypedData):
		var params SignTypedDataRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, "bad sign_typed_data params", err)
		}
		sig, err := s.keyring.signTypedData(params.KeyID, params.TypedData)
		if err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, err.Error(), err)
		}
		return SignResult{Signature: sig}, nil

	case string(CapGetAddress):
		var params GetAddressRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, "bad get_address params", err)
		}
		addr, err := s.keyring.address(params.KeyID)
		if err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, err.Error(), err)
		}
		return GetAddressResult{Address: addr}, nil

	default:
		return nil, rterr.New(rterr.KindUnknownMethod, fmt.Sprintf("unknown broker method: %s", req.Method))
	}
}
