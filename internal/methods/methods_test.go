package methods_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/approval"
	"github.com/nexuscore/agentrt/internal/chatsession"
	"github.com/nexuscore/agentrt/internal/dispatcher"
	"github.com/nexuscore/agentrt/internal/methods"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/internal/ssrf"
)

type fakePoster struct {
	posted []string
}

func (f *fakePoster) Post(ctx context.Context, content string) error {
	f.posted = append(f.posted, content)
	return nil
}

func newDispatcher(t *testing.T, deps methods.Deps) *dispatcher.Dispatcher {
	t.Helper()
	d := dispatcher.New(5 * time.Second)
	if err := methods.Register(d, deps); err != nil {
		t.Fatalf("register: %v", err)
	}
	d.Seal()
	return d
}

func dispatchKind(t *testing.T, d *dispatcher.Dispatcher, method string, params map[string]any, want rterr.Kind) {
	t.Helper()
	_, err := d.Dispatch(context.Background(), dispatcher.Request{Method: method, Params: params})
	if !errors.Is(err, rterr.New(want, "")) {
		t.Fatalf("%s: err = %v, want kind %s", method, err, want)
	}
}

func TestUnconfiguredCollaboratorsReturnNotFound(t *testing.T) {
	d := newDispatcher(t, methods.Deps{})
	dispatchKind(t, d, "post", map[string]any{"content": "hi"}, rterr.KindNotFound)
	dispatchKind(t, d, "defi", map[string]any{"query": "tvl"}, rterr.KindNotFound)
	dispatchKind(t, d, "research", map[string]any{"token": "X"}, rterr.KindNotFound)
	dispatchKind(t, d, "skill", map[string]any{"skillName": "x"}, rterr.KindNotFound)
	dispatchKind(t, d, "browser", map[string]any{"action": "snapshot"}, rterr.KindNotFound)
}

func TestChatRequiresMessage(t *testing.T) {
	d := newDispatcher(t, methods.Deps{
		Sessions: func(string) *chatsession.Session { return nil },
	})
	dispatchKind(t, d, "chat", map[string]any{}, rterr.KindInvalidParams)
}

func TestPostRoutesThroughPoster(t *testing.T) {
	poster := &fakePoster{}
	d := newDispatcher(t, methods.Deps{Poster: poster})

	result, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "post",
		Params: map[string]any{"content": "gm"},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(poster.posted) != 1 || poster.posted[0] != "gm" {
		t.Fatalf("posted = %v", poster.posted)
	}
	out, ok := result.(map[string]any)
	if !ok || out["posted"] != true {
		t.Fatalf("result = %v", result)
	}
}

func TestBrowserNavigateBlocksPrivateTargets(t *testing.T) {
	drv := &methods.MockBrowserDriver{}
	d := newDispatcher(t, methods.Deps{
		Browser: drv,
		Fetcher: ssrf.NewLimiter(),
	})

	_, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "browser",
		Params: map[string]any{"action": "navigate", "url": "http://169.254.169.254/latest/"},
	})
	if !errors.Is(err, rterr.New(rterr.KindHostPrivate, "")) {
		t.Fatalf("err = %v, want host_private", err)
	}
	if drv.LastAction != "" {
		t.Fatalf("driver was invoked (%s) despite the block", drv.LastAction)
	}
}

func TestBrowserNonNavigateSkipsURLValidation(t *testing.T) {
	drv := &methods.MockBrowserDriver{}
	d := newDispatcher(t, methods.Deps{
		Browser: drv,
		Fetcher: ssrf.NewLimiter(),
	})

	if _, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "browser",
		Params: map[string]any{"action": "snapshot"},
	}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if drv.LastAction != "snapshot" {
		t.Fatalf("action = %q, want snapshot", drv.LastAction)
	}
}

func TestDeployReportsMissingCollaboratorsBeforeParams(t *testing.T) {
	d := newDispatcher(t, methods.Deps{
		Approvals: nil,
	})
	// Missing collaborators are reported before params on this method.
	dispatchKind(t, d, "deploy", map[string]any{"template": "erc20"}, rterr.KindNotFound)
}

// countingSigner records SignMessage calls so tests can assert nothing was
// signed while an intent is still pending.
type countingSigner struct {
	signed int
}

func (s *countingSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	s.signed++
	return []byte{0x01}, nil
}

func (s *countingSigner) SignTypedData(ctx context.Context, typedData json.RawMessage) ([]byte, error) {
	s.signed++
	return []byte{0x01}, nil
}

func (s *countingSigner) Address(ctx context.Context) (string, error) {
	return "0xTEST", nil
}

type countingChain struct {
	deploys int
}

func (c *countingChain) Deploy(ctx context.Context, template string, params map[string]any, sig []byte) (string, string, error) {
	c.deploys++
	return "0xADDR", "0xTX", nil
}

func TestDeployPendingApprovalDoesNotSign(t *testing.T) {
	// Empty whitelist: every deploy intent parks as pending.
	approvals := approval.NewManager(approval.DefaultPolicy(), nil)
	sgn := &countingSigner{}
	chain := &countingChain{}
	d := newDispatcher(t, methods.Deps{
		Approvals: approvals,
		Signer:    sgn,
		Chain:     chain,
	})

	result, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "deploy",
		Params: map[string]any{"template": "erc20"},
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	out, ok := result.(map[string]any)
	if !ok || out["status"] != "awaiting_approval" {
		t.Fatalf("result = %v, want awaiting_approval", result)
	}
	id, _ := out["approvalId"].(string)
	if id == "" {
		t.Fatal("awaiting_approval response carries no approval id")
	}
	if sgn.signed != 0 || chain.deploys != 0 {
		t.Fatalf("pending intent reached signer/chain: signed=%d deploys=%d", sgn.signed, chain.deploys)
	}

	rec, err := approvals.Get(id)
	if err != nil || rec.State != approval.StatePending {
		t.Fatalf("record state = %v, %v; want pending", rec, err)
	}
}

func TestDeployApprovedIntentSignsAndExecutes(t *testing.T) {
	approvals := approval.NewManager(approval.Policy{
		Whitelist: []string{"erc20"},
		PerTxCap:  1,
		DailyCap:  10,
	}, nil)
	sgn := &countingSigner{}
	chain := &countingChain{}
	d := newDispatcher(t, methods.Deps{
		Approvals: approvals,
		Signer:    sgn,
		Chain:     chain,
	})

	result, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "deploy",
		Params: map[string]any{"template": "erc20"},
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	out, _ := result.(map[string]any)
	if out["address"] != "0xADDR" || out["txHash"] != "0xTX" {
		t.Fatalf("result = %v", result)
	}
	if sgn.signed != 1 || chain.deploys != 1 {
		t.Fatalf("approved intent: signed=%d deploys=%d, want 1/1", sgn.signed, chain.deploys)
	}
}
