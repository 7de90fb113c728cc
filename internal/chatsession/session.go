// Package chatsession holds conversation state and runs the user-facing
// chat loop: thinking-level commands, deterministic tool-intent extraction,
// ordinary LLM forwarding, and file-write block extraction into the
// workspace jail.
//
// Tool intents form a closed tagged union: a low-temperature extraction
// call either yields one of the known variants with all required fields
// literally present, or the turn falls through to ordinary LLM chat.
package chatsession

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/dispatcher"
	"github.com/nexuscore/agentrt/internal/thinking"
	"github.com/nexuscore/agentrt/internal/workspace"
	"github.com/nexuscore/agentrt/pkg/models"
)

// DefaultHistoryExchanges bounds rolling history to the last N
// user/assistant exchanges (2N entries).
const DefaultHistoryExchanges = 15

// inboundTruncateBytes bounds the content published on message:inbound.
const inboundTruncateBytes = 200

// IntentKind is the closed set of tool intents a chat turn may resolve to.
type IntentKind string

const (
	IntentSend    IntentKind = "send"
	IntentSwap    IntentKind = "swap"
	IntentDeploy  IntentKind = "deploy"
	IntentBalance IntentKind = "balance"
	IntentNone    IntentKind = "none"
)

// requiredFields lists the literal fields each intent kind must carry; a
// field absent from the LLM's JSON is a missing-field reply, never an
// inferred default.
var requiredFields = map[IntentKind][]string{
	IntentSend:    {"to", "amount"},
	IntentSwap:    {"fromToken", "toToken", "amount"},
	IntentDeploy:  {"template"},
	IntentBalance: {"address"},
}

// Intent is the tagged-union structure extracted from natural language.
type Intent struct {
	Kind   IntentKind     `json:"intent"`
	Fields map[string]any `json:"fields"`
}

// Exchange is one turn in the rolling history.
type Exchange struct {
	Role    string // "user" or "assistant"
	Content string
	At      time.Time
}

// Completer is the LLM-facing dependency; satisfied by *broker.Client.
type Completer interface {
	Complete(ctx context.Context, req broker.CompletionRequest) (*broker.CompletionResult, error)
}

// IntentHandler executes one deterministic tool intent and returns the
// reply text shown to the user.
type IntentHandler func(ctx context.Context, fields map[string]any) (string, error)

// Config configures a Session.
type Config struct {
	SessionID        string
	IdentityPrompt   string
	HistoryExchanges int
	OwnerOnly        bool
	OwnerIdentity    string
	Model            string
}

// Session holds one conversation's state and owns its rolling history
// exclusively; other components never touch it directly.
type Session struct {
	cfg        Config
	llm        Completer
	dispatcher *dispatcher.Dispatcher
	bus        *bus.Bus
	jail       *workspace.Jail
	handlers   map[IntentKind]IntentHandler

	mu      sync.Mutex
	level   thinking.Level
	history []Exchange
}

func New(cfg Config, llm Completer, d *dispatcher.Dispatcher, b *bus.Bus, jail *workspace.Jail, handlers map[IntentKind]IntentHandler) *Session {
	if cfg.HistoryExchanges <= 0 {
		cfg.HistoryExchanges = DefaultHistoryExchanges
	}
	return &Session{
		cfg:      cfg,
		llm:      llm,
		dispatcher: d,
		bus:      b,
		jail:     jail,
		handlers: handlers,
		level:    thinking.Default,
	}
}

// ThinkingLevel reports the session's current reasoning budget.
func (s *Session) ThinkingLevel() thinking.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// HandleMessage processes one inbound message and returns the reply shown
// to the user. senderIdentity is empty when the caller is anonymous or the
// identity is not enforced.
func (s *Session) HandleMessage(ctx context.Context, senderIdentity, message string) (string, error) {
	if s.cfg.OwnerOnly && s.cfg.OwnerIdentity != "" && senderIdentity != s.cfg.OwnerIdentity {
		return "", nil // owner-only mode: dropped without reply
	}

	s.publishInbound(message)

	if level, ok := thinking.ParseCommand(message); ok {
		s.mu.Lock()
		s.level = level
		s.mu.Unlock()
		return fmt.Sprintf("thinking level set to %s", level), nil
	}

	intent, err := s.extractIntent(ctx, message)
	if err != nil {
		return "", fmt.Errorf("chatsession: intent extraction failed: %w", err)
	}
	if intent.Kind != IntentNone {
		if reply, handled := s.resolveIntent(ctx, intent); handled {
			s.appendHistory("user", message)
			s.appendHistory("assistant", reply)
			return reply, nil
		}
	}

	reply, err := s.forwardToLLM(ctx, message)
	if err != nil {
		return "", err
	}

	visible, written := s.extractFileWrites(reply)
	s.appendHistory("user", message)
	s.appendHistory("assistant", visible)
	if len(written) > 0 {
		visible += "\n\nWrote: " + strings.Join(written, ", ")
	}
	return visible, nil
}

func (s *Session) publishInbound(message string) {
	if s.bus == nil {
		return
	}
	content := message
	if len(content) > inboundTruncateBytes {
		content = content[:inboundTruncateBytes]
	}
	s.bus.Publish(models.Event{
		Topic:       models.TopicMessageInbound,
		Payload:     content,
		PublishedAt: time.Now(),
	})
}

func (s *Session) appendHistory(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Exchange{Role: role, Content: content, At: time.Now()})
	maxEntries := s.cfg.HistoryExchanges * 2
	if len(s.history) > maxEntries {
		s.history = s.history[len(s.history)-maxEntries:]
	}
}

func (s *Session) snapshotHistory() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

// intentExtractionSystem instructs the low-temperature extraction call to
// emit strictly the closed intent schema with no inferred fields.
const intentExtractionSystem = `Extract a structured tool intent from the user's message. ` +
	`Respond with JSON {"intent": "send|swap|deploy|balance|none", "fields": {...}}. ` +
	`Only include a field if it is literally present in the message text. Never infer or guess a value.`

func (s *Session) extractIntent(ctx context.Context, message string) (Intent, error) {
	zero := 0.0
	result, err := s.llm.Complete(ctx, broker.CompletionRequest{
		Model:  s.cfg.Model,
		System: intentExtractionSystem,
		Messages: []broker.CompletionMessage{
			{Role: "user", Content: message},
		},
		MaxTokens:   512,
		Temperature: &zero,
	})
	if err != nil {
		return Intent{}, err
	}
	var intent Intent
	if err := json.Unmarshal([]byte(result.Content), &intent); err != nil {
		return Intent{Kind: IntentNone}, nil
	}
	switch intent.Kind {
	case IntentSend, IntentSwap, IntentDeploy, IntentBalance, IntentNone:
	default:
		intent.Kind = IntentNone
	}
	return intent, nil
}

// resolveIntent invokes the deterministic handler for intent.Kind if every
// required field is literally present; otherwise it returns a specific
// missing-field reply. handled is false only when no handler is registered
// for this intent kind, in which case the caller falls back to the LLM.
func (s *Session) resolveIntent(ctx context.Context, intent Intent) (string, bool) {
	handler, ok := s.handlers[intent.Kind]
	if !ok {
		return "", false
	}
	for _, field := range requiredFields[intent.Kind] {
		if _, present := intent.Fields[field]; !present {
			return fmt.Sprintf("missing required field %q for %s", field, intent.Kind), true
		}
	}
	reply, err := handler(ctx, intent.Fields)
	if err != nil {
		return fmt.Sprintf("%s failed: %s", intent.Kind, err.Error()), true
	}
	return reply, true
}

func (s *Session) forwardToLLM(ctx context.Context, message string) (string, error) {
	params, err := thinking.ParamsFor(s.ThinkingLevel())
	if err != nil {
		return "", err
	}

	system := s.cfg.IdentityPrompt + " " + params.SystemSuffix
	messages := make([]broker.CompletionMessage, 0, len(s.history)+1)
	for _, ex := range s.snapshotHistory() {
		messages = append(messages, broker.CompletionMessage{Role: ex.Role, Content: ex.Content})
	}
	messages = append(messages, broker.CompletionMessage{Role: "user", Content: message})

	result, err := s.llm.Complete(ctx, broker.CompletionRequest{
		Model:       s.cfg.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: &params.Temperature,
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// fileWriteBlock matches the LLM's file-write framing:
// ```write:<path>
// <content>
// ```
var fileWriteBlock = regexp.MustCompile("(?s)```write:([^\n`]+)\n(.*?)```")

// extractFileWrites strips every file-write block from reply, validates its
// path against the workspace jail, enforces the size cap, and writes it.
// The returned visible text has the raw framing stripped even for blocks
// that fail to write (so a rejected write is never shown as literal syntax
// to the user); failures are silently omitted from the written list.
func (s *Session) extractFileWrites(reply string) (string, []string) {
	var written []string
	visible := fileWriteBlock.ReplaceAllStringFunc(reply, func(block string) string {
		m := fileWriteBlock.FindStringSubmatch(block)
		if len(m) != 3 || s.jail == nil {
			return ""
		}
		path := strings.TrimSpace(m[1])
		content := m[2]
		if _, err := s.jail.WriteFile(path, []byte(content)); err == nil {
			written = append(written, path)
		}
		return ""
	})
	return strings.TrimSpace(visible), written
}
