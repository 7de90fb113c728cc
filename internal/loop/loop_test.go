package loop

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/dispatcher"
)

type fakeCompleter struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, req broker.CompletionRequest) (*broker.CompletionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &broker.CompletionResult{Content: f.content}, nil
}

func TestParseDecisionRejectsUnknownAction(t *testing.T) {
	if _, ok := parseDecision(`{"action":"launch-missiles"}`); ok {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestParseDecisionAcceptsNoop(t *testing.T) {
	d, ok := parseDecision(`{"action":"noop"}`)
	if !ok || d.Action != ActionNoop {
		t.Fatalf("expected noop decision, got %+v ok=%v", d, ok)
	}
}

func TestParseDecisionRejectsMalformedJSON(t *testing.T) {
	if _, ok := parseDecision(`not json`); ok {
		t.Fatal("expected malformed JSON to be rejected")
	}
}

func TestTickDispatchesAtMostOneAction(t *testing.T) {
	d := dispatcher.New(time.Second)
	calls := 0
	d.Register("post", func(ctx context.Context, params map[string]any) (any, error) {
		calls++
		return map[string]any{}, nil
	}, 0, nil)
	d.Seal()

	completer := &fakeCompleter{content: `{"action":"post","text":"hi"}`}
	b := bus.New(8)
	l, err := New(Config{Interval: time.Hour}, b, completer, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.tick(context.Background())

	if calls != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", calls)
	}
}

func TestTickAbandonsOnCompletionFailure(t *testing.T) {
	d := dispatcher.New(time.Second)
	calls := 0
	d.Register("post", func(ctx context.Context, params map[string]any) (any, error) {
		calls++
		return nil, nil
	}, 0, nil)
	d.Seal()

	completer := &fakeCompleter{err: context.DeadlineExceeded}
	l, err := New(Config{Interval: time.Hour}, bus.New(8), completer, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.tick(context.Background())

	if calls != 0 {
		t.Fatalf("expected no dispatch on completion failure, got %d", calls)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	d := dispatcher.New(time.Second)
	d.Seal()
	l, err := New(Config{Interval: time.Hour}, bus.New(8), &fakeCompleter{content: `{"action":"noop"}`}, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.Start(ctx)
	l.Start(ctx) // no-op
	l.Stop()
	l.Stop() // no-op, must not hang or panic
}
