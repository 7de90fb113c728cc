package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/rterr"
)

type recordingNotifier struct {
	notified []*Record
}

func (n *recordingNotifier) NotifyPending(ctx context.Context, rec *Record) error {
	n.notified = append(n.notified, rec)
	return nil
}

func TestSubmitAutoApprovesWithinWhitelistAndCaps(t *testing.T) {
	policy := DefaultPolicy()
	policy.Whitelist = []string{"0xDEAD"}
	policy.PerTxCap = 100
	policy.DailyCap = 1000

	m := NewManager(policy, nil)
	rec, err := m.Submit(context.Background(), Intent{To: "0xdead", Value: 50}, "agent-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.State != StateApproved {
		t.Fatalf("expected auto-approval, got state %s", rec.State)
	}
	if rec.Source != SourceAuto {
		t.Fatalf("expected source auto, got %s", rec.Source)
	}
}

func TestSubmitRejectsAutoApproveOverPerTxCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.Whitelist = []string{"0xdead"}
	policy.PerTxCap = 10

	notifier := &recordingNotifier{}
	m := NewManager(policy, notifier)
	rec, err := m.Submit(context.Background(), Intent{To: "0xdead", Value: 50}, "agent-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.State != StatePending {
		t.Fatalf("expected pending state over per-tx cap, got %s", rec.State)
	}
	if len(notifier.notified) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.notified))
	}
}

func TestSubmitRejectsAutoApproveOverDailyCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.Whitelist = []string{"0xdead"}
	policy.PerTxCap = 1000
	policy.DailyCap = 60

	m := NewManager(policy, nil)
	ctx := context.Background()

	first, err := m.Submit(ctx, Intent{To: "0xdead", Value: 50}, "agent-1")
	if err != nil || first.State != StateApproved {
		t.Fatalf("expected first to auto-approve, got state=%v err=%v", first.State, err)
	}

	second, err := m.Submit(ctx, Intent{To: "0xdead", Value: 50}, "agent-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if second.State != StatePending {
		t.Fatalf("expected second to exceed daily cap and go pending, got %s", second.State)
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	m := NewManager(DefaultPolicy(), nil)
	rec, _ := m.Submit(context.Background(), Intent{To: "0xbeef", Value: 5000}, "agent-1")
	if rec.State != StatePending {
		t.Fatalf("expected pending, got %s", rec.State)
	}

	resolved, err := m.Resolve(context.Background(), rec.ID, true, "operator")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.State != StateApproved {
		t.Fatalf("expected approved, got %s", resolved.State)
	}

	_, err = m.Resolve(context.Background(), rec.ID, false, "operator")
	var rtErr *rterr.Error
	if !errors.As(err, &rtErr) || rtErr.Kind != rterr.KindAlreadyResolved {
		t.Fatalf("expected KindAlreadyResolved on second resolution, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	policy := DefaultPolicy()
	policy.DefaultTTL = time.Millisecond
	m := NewManager(policy, nil)

	rec, _ := m.Submit(context.Background(), Intent{To: "0xbeef", Value: 5000}, "agent-1")
	time.Sleep(5 * time.Millisecond)

	if n := m.SweepExpired(); n != 1 {
		t.Fatalf("expected 1 expired record, got %d", n)
	}

	got, err := m.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateExpired {
		t.Fatalf("expected expired, got %s", got.State)
	}
	if got.Source != SourceExpiry {
		t.Fatalf("expected source expiry, got %s", got.Source)
	}
}

func TestMarkExecutedRequiresApproved(t *testing.T) {
	m := NewManager(DefaultPolicy(), nil)
	rec, _ := m.Submit(context.Background(), Intent{To: "0xbeef", Value: 5000}, "agent-1")

	if err := m.MarkExecuted(rec.ID); err == nil {
		t.Fatal("expected error marking a pending record executed")
	}

	if _, err := m.Resolve(context.Background(), rec.ID, true, "operator"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := m.MarkExecuted(rec.ID); err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
}
