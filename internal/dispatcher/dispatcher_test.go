package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/rterr"
)

func assertKind(t *testing.T, err error, kind rterr.Kind) {
	t.Helper()
	var rerr *rterr.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *rterr.Error, got %v (%T)", err, err)
	}
	if rerr.Kind != kind {
		t.Fatalf("expected kind %s, got %s", kind, rerr.Kind)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := New(time.Second)
	d.Seal()
	_, err := d.Dispatch(context.Background(), Request{Method: "nope"})
	assertKind(t, err, rterr.KindUnknownMethod)
}

func TestDispatchHappyPath(t *testing.T) {
	d := New(time.Second)
	if err := d.Register("chat", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"content": "hi"}, nil
	}, 0, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.Seal()
	result, err := d.Dispatch(context.Background(), Request{Method: "chat", Params: map[string]any{"message": "hello"}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	m := result.(map[string]any)
	if m["content"] != "hi" {
		t.Fatalf("got %v", result)
	}
}

func TestDispatchDuplicateCorrelationAllowedAfterCompletion(t *testing.T) {
	d := New(time.Second)
	_ = d.Register("chat", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	}, 0, nil)
	d.Seal()
	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), Request{CorrelationID: "r1", Method: "chat"}); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
}

func TestDispatchDeadlineExceeded(t *testing.T) {
	d := New(time.Second)
	_ = d.Register("slow", func(ctx context.Context, params map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 10*time.Millisecond, nil)
	d.Seal()
	_, err := d.Dispatch(context.Background(), Request{Method: "slow"})
	assertKind(t, err, rterr.KindDeadlineExceeded)
}

func TestDispatchInvalidParams(t *testing.T) {
	d := New(time.Second)
	schema := []byte(`{"type":"object","required":["message"],"properties":{"message":{"type":"string"}}}`)
	_ = d.Register("chat", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	}, 0, schema)
	d.Seal()
	_, err := d.Dispatch(context.Background(), Request{Method: "chat", Params: map[string]any{}})
	assertKind(t, err, rterr.KindInvalidParams)
}

func TestShutdownRefusesNewRequests(t *testing.T) {
	d := New(time.Second)
	_ = d.Register("chat", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	}, 0, nil)
	d.Seal()
	d.Shutdown()
	_, err := d.Dispatch(context.Background(), Request{Method: "chat"})
	assertKind(t, err, rterr.KindShuttingDown)
}

func TestShutdownCancelsInFlight(t *testing.T) {
	d := New(time.Second)
	started := make(chan struct{})
	_ = d.Register("block", func(ctx context.Context, params map[string]any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, 5*time.Second, nil)
	d.Seal()

	resultCh := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), Request{Method: "block"})
		resultCh <- err
	}()
	<-started
	d.Shutdown()

	select {
	case err := <-resultCh:
		assertKind(t, err, rterr.KindCancelled)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after shutdown")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	d := New(time.Second)
	d.Seal()
	d.Shutdown()
	d.Shutdown()
}
