// Package queue is the task queue poller: periodically
// pulls pending task ids from an external queue collaborator, claims each
// with a compare-and-set, dispatches it to the handler matching its type,
// and writes back the result with a retention TTL.
//
// At most one cycle is in flight at a time; a tick that arrives while a
// cycle is still running is skipped. Claims race cleanly: the CAS from
// pending to processing admits exactly one claimant per task.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nexuscore/agentrt/internal/kvstore"
	"github.com/nexuscore/agentrt/internal/rterr"
)

// TaskType is one of the closed set of task types.
type TaskType string

const (
	TypeDefiQuery       TaskType = "defi-query"
	TypeContractDeploy  TaskType = "contract-deploy"
	TypeTokenResearch   TaskType = "token-research"
	TypeContentGenerate TaskType = "content-generate"
	TypeScamCheck       TaskType = "scam-check"
)

// Status is the closed set of forward-only task statuses.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is one queue task.
type Record struct {
	TaskID      string          `json:"task_id"`
	Type        TaskType        `json:"type"`
	Params      json.RawMessage `json:"params"`
	Status      Status          `json:"status"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Err         string          `json:"error,omitempty"`
}

// pendingKey and recordKey are the two kvstore keys the poller touches.
const pendingKey = "tasks:pending"

func recordKey(id string) string { return "task:" + id }

// Handler executes one task type and returns its result or a typed error.
type Handler func(ctx context.Context, rec Record) (json.RawMessage, error)

// Config configures a Poller.
type Config struct {
	PollInterval   time.Duration // default 5s
	Batch          int           // default 3
	TaskDeadline   time.Duration // per-task execution budget
	ResultTTL      time.Duration // default 1h
	Logger         *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 3
	}
	if c.TaskDeadline <= 0 {
		c.TaskDeadline = 30 * time.Second
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "queue")
	}
	return c
}

// Poller is the at-most-one-cycle-in-flight queue dispatcher.
type Poller struct {
	store    kvstore.Store
	handlers map[TaskType]Handler
	cfg      Config

	mu      sync.Mutex
	running bool
}

// New constructs a Poller. handlers maps each known task type to its
// execution handler; unknown types are shed immediately.
func New(store kvstore.Store, handlers map[TaskType]Handler, cfg Config) *Poller {
	return &Poller{store: store, handlers: handlers, cfg: cfg.withDefaults()}
}

// Run ticks at cfg.PollInterval until ctx is done, skipping a tick if the
// previous cycle is still in flight.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ids, err := p.pullPending(ctx, p.cfg.Batch)
	if err != nil {
		p.cfg.Logger.Warn("pull pending failed", "error", err)
		return
	}
	for _, id := range ids {
		p.processOne(ctx, id)
	}
}

func (p *Poller) pullPending(ctx context.Context, batch int) ([]string, error) {
	raw, err := p.store.Get(ctx, pendingKey)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var all []string
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	if len(all) > batch {
		all = all[:batch]
	}
	return all, nil
}

func (p *Poller) processOne(ctx context.Context, id string) {
	rec, err := p.loadRecord(ctx, id)
	if err != nil {
		return
	}
	if rec.Status != StatusPending {
		return // already claimed by another poller, skip
	}

	claimed := rec
	now := time.Now()
	claimed.Status = StatusProcessing
	claimed.ClaimedAt = &now
	if err := p.casRecord(ctx, id, rec, claimed); err != nil {
		return // lost the race, skip
	}
	p.removeFromPending(ctx, id)

	handler, ok := p.handlers[claimed.Type]
	if !ok {
		p.writeBack(ctx, id, claimed, nil, rterr.New(rterr.KindUnknownMethod, string(claimed.Type)))
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskDeadline)
	defer cancel()
	result, err := handler(taskCtx, claimed)
	p.writeBack(ctx, id, claimed, result, err)
}

func (p *Poller) loadRecord(ctx context.Context, id string) (Record, error) {
	raw, err := p.store.Get(ctx, recordKey(id))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (p *Poller) casRecord(ctx context.Context, id string, expected, next Record) error {
	expectedRaw, _ := json.Marshal(expected)
	nextRaw, _ := json.Marshal(next)
	return p.store.CompareAndSwap(ctx, recordKey(id), expectedRaw, nextRaw, 0)
}

func (p *Poller) writeBack(ctx context.Context, id string, rec Record, result json.RawMessage, err error) {
	now := time.Now()
	rec.CompletedAt = &now
	if err != nil {
		rec.Status = StatusFailed
		rec.Err = err.Error()
	} else {
		rec.Status = StatusCompleted
		rec.Result = result
	}
	raw, _ := json.Marshal(rec)
	_ = p.store.Set(ctx, recordKey(id), raw, p.cfg.ResultTTL)
}

func (p *Poller) removeFromPending(ctx context.Context, id string) {
	raw, err := p.store.Get(ctx, pendingKey)
	if err != nil {
		return
	}
	var all []string
	if err := json.Unmarshal(raw, &all); err != nil {
		return
	}
	out := all[:0]
	for _, existing := range all {
		if existing != id {
			out = append(out, existing)
		}
	}
	newRaw, _ := json.Marshal(out)
	_ = p.store.Set(ctx, pendingKey, newRaw, 0)
}

// Enqueue adds a new pending task record and appends its id to the pending
// list — a convenience for callers (gateway handlers, the agentic loop)
// that submit work into the queue.
func Enqueue(ctx context.Context, store kvstore.Store, rec Record) error {
	rec.Status = StatusPending
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, recordKey(rec.TaskID), raw, 0); err != nil {
		return err
	}

	existingRaw, err := store.Get(ctx, pendingKey)
	var ids []string
	if err == nil {
		_ = json.Unmarshal(existingRaw, &ids)
	}
	ids = append(ids, rec.TaskID)
	newRaw, _ := json.Marshal(ids)
	return store.Set(ctx, pendingKey, newRaw, 0)
}
