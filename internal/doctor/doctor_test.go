package doctor

import (
	"context"
	"errors"
	"testing"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/kvstore"
	"github.com/nexuscore/agentrt/internal/workspace"
)

type fakeBroker struct {
	health *broker.HealthResult
	err    error
}

func (f *fakeBroker) Health(ctx context.Context) (*broker.HealthResult, error) {
	return f.health, f.err
}

func TestCheckBroker(t *testing.T) {
	cases := []struct {
		name   string
		client BrokerHealth
		want   Status
	}{
		{"not connected", nil, StatusDegraded},
		{"healthy", &fakeBroker{health: &broker.HealthResult{Healthy: true}}, StatusOK},
		{"unhealthy", &fakeBroker{health: &broker.HealthResult{Healthy: false}}, StatusDegraded},
		{"unreachable", &fakeBroker{err: errors.New("dial: no such file")}, StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckBroker(context.Background(), tc.client)
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s (%s)", got.Status, tc.want, got.Detail)
			}
		})
	}
}

func TestCheckStoreRoundTrip(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	got := CheckStore(context.Background(), store)
	if got.Status != StatusOK {
		t.Fatalf("status = %s (%s), want ok", got.Status, got.Detail)
	}
}

func TestCheckStoreNil(t *testing.T) {
	if got := CheckStore(context.Background(), nil); got.Status != StatusFailed {
		t.Fatalf("nil store should fail, got %s", got.Status)
	}
}

func TestCheckWorkspace(t *testing.T) {
	jail, err := workspace.New(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	if got := CheckWorkspace(jail); got.Status != StatusOK {
		t.Fatalf("status = %s (%s), want ok", got.Status, got.Detail)
	}
}

func TestCheckSupervisorAbsent(t *testing.T) {
	if got := CheckSupervisor(nil, 4); got.Status != StatusDegraded {
		t.Fatalf("absent supervisor should be degraded, got %s", got.Status)
	}
}

func TestRunAllAlwaysReportsFourRows(t *testing.T) {
	results := RunAll(context.Background(), Deps{})
	if len(results) != 4 {
		t.Fatalf("got %d rows, want 4", len(results))
	}
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"broker", "kvstore", "workspace", "subagents"} {
		if !names[want] {
			t.Fatalf("missing %s row", want)
		}
	}
}
