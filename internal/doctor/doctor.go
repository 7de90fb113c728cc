// Package doctor runs the runtime's self-checks: broker reachability,
// key/value store health, workspace writability, and sub-agent headroom.
// Each check is independent and reports a status rather than failing the
// process; the broker and store probes are bounded by a timeout.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/kvstore"
	"github.com/nexuscore/agentrt/internal/subagent"
	"github.com/nexuscore/agentrt/internal/workspace"
)

// Status classifies one check's outcome.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Result is one check's report.
type Result struct {
	Name   string
	Status Status
	Detail string
}

const checkTimeout = 5 * time.Second

// BrokerHealth is the slice of *broker.Client the broker check needs;
// narrowed to an interface so tests can probe without a live socket.
type BrokerHealth interface {
	Health(ctx context.Context) (*broker.HealthResult, error)
}

// CheckBroker probes the secrets broker. A nil client reports the degraded
// mode the runtime runs in when the broker was unreachable at startup.
func CheckBroker(ctx context.Context, client BrokerHealth) Result {
	if client == nil {
		return Result{Name: "broker", Status: StatusDegraded, Detail: "not connected; credential-backed operations unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return Result{Name: "broker", Status: StatusFailed, Detail: err.Error()}
	}
	if !health.Healthy {
		return Result{Name: "broker", Status: StatusDegraded, Detail: "broker reports unhealthy"}
	}
	return Result{Name: "broker", Status: StatusOK, Detail: fmt.Sprintf("%d capabilities", len(health.Capabilities))}
}

// CheckStore round-trips a probe key through the configured backend.
func CheckStore(ctx context.Context, store kvstore.Store) Result {
	if store == nil {
		return Result{Name: "kvstore", Status: StatusFailed, Detail: "no store configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	key := "doctor:probe:" + uuid.NewString()
	if err := store.Set(ctx, key, []byte("ping"), time.Minute); err != nil {
		return Result{Name: "kvstore", Status: StatusFailed, Detail: "set: " + err.Error()}
	}
	value, err := store.Get(ctx, key)
	if err != nil {
		return Result{Name: "kvstore", Status: StatusFailed, Detail: "get: " + err.Error()}
	}
	_ = store.Delete(ctx, key)
	if string(value) != "ping" {
		return Result{Name: "kvstore", Status: StatusFailed, Detail: "round-trip value mismatch"}
	}
	return Result{Name: "kvstore", Status: StatusOK}
}

// CheckWorkspace verifies the jail root exists and accepts a write inside
// the prefix check.
func CheckWorkspace(jail *workspace.Jail) Result {
	if jail == nil {
		return Result{Name: "workspace", Status: StatusFailed, Detail: "no workspace configured"}
	}
	name := ".doctor-" + uuid.NewString()
	path, err := jail.WriteFile(name, []byte("probe"))
	if err != nil {
		return Result{Name: "workspace", Status: StatusFailed, Detail: err.Error()}
	}
	_ = os.Remove(path)
	return Result{Name: "workspace", Status: StatusOK, Detail: filepath.Dir(path)}
}

// CheckSupervisor reports sub-agent concurrency headroom.
func CheckSupervisor(sup *subagent.Supervisor, concurrencyCap int) Result {
	if sup == nil {
		return Result{Name: "subagents", Status: StatusDegraded, Detail: "supervisor not running"}
	}
	if concurrencyCap <= 0 {
		concurrencyCap = subagent.DefaultConcurrencyCap
	}
	active := 0
	for _, rec := range sup.List() {
		switch rec.State {
		case subagent.StateStarting, subagent.StateIdle, subagent.StateBusy, subagent.StateStopping:
			active++
		}
	}
	detail := fmt.Sprintf("%d/%d slots in use", active, concurrencyCap)
	if active >= concurrencyCap {
		return Result{Name: "subagents", Status: StatusDegraded, Detail: detail + "; at capacity"}
	}
	return Result{Name: "subagents", Status: StatusOK, Detail: detail}
}

// Deps collects everything RunAll probes. A nil field still produces a row
// for the matching check (degraded for broker and supervisor, failed for
// store and workspace), so the report always has the same rows.
type Deps struct {
	Broker         BrokerHealth
	Store          kvstore.Store
	Workspace      *workspace.Jail
	Supervisor     *subagent.Supervisor
	ConcurrencyCap int
}

// RunAll executes every check and returns the report in a fixed order.
func RunAll(ctx context.Context, deps Deps) []Result {
	return []Result{
		CheckBroker(ctx, deps.Broker),
		CheckStore(ctx, deps.Store),
		CheckWorkspace(deps.Workspace),
		CheckSupervisor(deps.Supervisor, deps.ConcurrencyCap),
	}
}
