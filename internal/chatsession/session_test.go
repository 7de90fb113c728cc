package chatsession

import (
	"context"
	"os"
	"testing"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/thinking"
	"github.com/nexuscore/agentrt/internal/workspace"
)

type scriptedCompleter struct {
	responses []string
	calls     int
}

func (c *scriptedCompleter) Complete(ctx context.Context, req broker.CompletionRequest) (*broker.CompletionResult, error) {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	return &broker.CompletionResult{Content: c.responses[idx]}, nil
}

func TestThinkingCommandSetsLevelWithoutLLMCall(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"intent":"none"}`}}
	s := New(Config{}, completer, nil, nil, nil, nil)

	reply, err := s.HandleMessage(context.Background(), "", "thinking:high")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a confirmation reply")
	}
	if s.ThinkingLevel() != thinking.High {
		t.Fatalf("expected level high, got %s", s.ThinkingLevel())
	}
	if completer.calls != 0 {
		t.Fatalf("expected no LLM call for a thinking command, got %d", completer.calls)
	}
}

func TestOwnerOnlyDropsNonOwnerMessages(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"intent":"none"}`, "hi there"}}
	s := New(Config{OwnerOnly: true, OwnerIdentity: "owner-1"}, completer, nil, nil, nil, nil)

	reply, err := s.HandleMessage(context.Background(), "stranger", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "" {
		t.Fatalf("expected dropped message to produce no reply, got %q", reply)
	}
}

func TestMissingIntentFieldProducesSpecificReplyWithoutInference(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"intent":"send","fields":{"to":"0xAA"}}`}}
	handlers := map[IntentKind]IntentHandler{
		IntentSend: func(ctx context.Context, fields map[string]any) (string, error) {
			t.Fatal("handler should not run when a required field is missing")
			return "", nil
		},
	}
	s := New(Config{}, completer, nil, nil, nil, handlers)

	reply, err := s.HandleMessage(context.Background(), "", "send some eth")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a missing-field reply")
	}
}

func TestResolvedIntentInvokesDeterministicHandler(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"intent":"balance","fields":{"address":"0xAA"}}`}}
	handlers := map[IntentKind]IntentHandler{
		IntentBalance: func(ctx context.Context, fields map[string]any) (string, error) {
			return "balance: 1.5 ETH", nil
		},
	}
	s := New(Config{}, completer, nil, nil, nil, handlers)

	reply, err := s.HandleMessage(context.Background(), "", "what's my balance for 0xAA")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "balance: 1.5 ETH" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestNoIntentForwardsToLLMAndBusPublishesInbound(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"intent":"none"}`, "general chat reply"}}
	b := bus.New(8)
	sub := b.Subscribe("message:inbound")
	defer sub.Unsubscribe()

	s := New(Config{IdentityPrompt: "you are an agent"}, completer, nil, b, nil, nil)

	reply, err := s.HandleMessage(context.Background(), "", "tell me a joke")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply != "general chat reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	select {
	case ev := <-sub.C:
		if ev.Payload != "tell me a joke" {
			t.Fatalf("unexpected inbound payload: %v", ev.Payload)
		}
	default:
		t.Fatal("expected message:inbound publication")
	}
}

func TestFileWriteBlockExtractedAndStripped(t *testing.T) {
	dir := t.TempDir()
	jail, err := workspace.New(dir, 0)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	reply := "Here you go:\n```write:notes.txt\nhello world\n```\nDone."
	completer := &scriptedCompleter{responses: []string{`{"intent":"none"}`, reply}}
	s := New(Config{}, completer, nil, nil, jail, nil)

	visible, err := s.HandleMessage(context.Background(), "", "write me a file")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if visible == reply {
		t.Fatal("expected raw file-write framing to be stripped")
	}
	content, err := os.ReadFile(dir + "/notes.txt")
	if err != nil {
		t.Fatalf("expected file to be written: %v", err)
	}
	if string(content) != "hello world\n" {
		t.Fatalf("unexpected file content: %q", content)
	}
}
