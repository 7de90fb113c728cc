// Package loop implements the agentic loop: a periodic planner that reads a
// bounded snapshot of recent bus events, asks the LLM (via the secrets
// broker) for one structured decision, and executes at most one action per
// tick through the dispatcher's ordinary correlation pathway.
//
// The cadence is a fixed interval by default; a cron expression may
// override it. A failed tick is abandoned, never retried.
package loop

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/dispatcher"
	"github.com/nexuscore/agentrt/internal/thinking"
	"github.com/nexuscore/agentrt/pkg/models"
)

// DefaultInterval is the tick cadence when no cron override is configured.
const DefaultInterval = 60 * time.Second

// DefaultSnapshotSize bounds how many recent bus events feed one planner
// prompt.
const DefaultSnapshotSize = 50

// ActionKind is the closed set of decisions the planner may emit.
type ActionKind string

const (
	ActionPost       ActionKind = "post"
	ActionSkillCall  ActionKind = "skill-call"
	ActionDispatch   ActionKind = "dispatcher-call"
	ActionNoop       ActionKind = "noop"
)

// Decision is the parsed, validated planner output for one tick.
type Decision struct {
	Action ActionKind     `json:"action"`
	Method string         `json:"method,omitempty"` // for ActionDispatch
	Skill  string         `json:"skill,omitempty"`  // for ActionSkillCall
	Params map[string]any `json:"params,omitempty"`
	Text   string         `json:"text,omitempty"` // for ActionPost
}

// Completer is the LLM-facing dependency; satisfied by *broker.Client.
type Completer interface {
	Complete(ctx context.Context, req broker.CompletionRequest) (*broker.CompletionResult, error)
}

// Config configures the Loop.
type Config struct {
	Interval    time.Duration // used when CronExpr is empty
	CronExpr    string        // optional cron expression overriding Interval
	SnapshotSize int
	Model       string
	Logger      *slog.Logger
}

// Loop is the periodic planner. The zero value is not usable; construct
// with New.
type Loop struct {
	cfg        Config
	bus        *bus.Bus
	llm        Completer
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	schedule   cron.Schedule

	mu      sync.Mutex
	running bool
	level   thinking.Level
	stopCh  chan struct{}
	doneCh  chan struct{}

	sub *bus.Subscription
}

// New constructs a Loop. llm and d must be non-nil; b may be nil, in which
// case every tick's snapshot is empty.
func New(cfg Config, b *bus.Bus, llm Completer, d *dispatcher.Dispatcher) (*Loop, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = DefaultSnapshotSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "loop")
	}

	var sched cron.Schedule
	if cfg.CronExpr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		parsed, err := parser.Parse(cfg.CronExpr)
		if err != nil {
			return nil, err
		}
		sched = parsed
	}

	return &Loop{
		cfg:        cfg,
		bus:        b,
		llm:        llm,
		dispatcher: d,
		logger:     logger,
		schedule:   sched,
		level:      thinking.Default,
	}, nil
}

// SetThinkingLevel changes the reasoning budget used for subsequent ticks.
func (l *Loop) SetThinkingLevel(level thinking.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Start begins the tick loop. It is a no-op if already running.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	if l.bus != nil {
		l.sub = l.bus.Subscribe(models.TopicMessageInbound)
	}
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop halts the tick loop and waits for the in-flight tick, if any, to
// finish. It is safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	close(l.stopCh)
	done := l.doneCh
	sub := l.sub
	l.mu.Unlock()

	<-done
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (l *Loop) run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.running = false
		close(l.doneCh)
		l.mu.Unlock()
	}()

	next := l.nextTick(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-timer.C:
			l.tick(ctx)
			next = l.nextTick(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

func (l *Loop) nextTick(from time.Time) time.Time {
	if l.schedule != nil {
		return l.schedule.Next(from)
	}
	return from.Add(l.cfg.Interval)
}

// tick runs exactly one planning cycle. Any failure abandons the tick; the
// next tick proceeds normally.
func (l *Loop) tick(ctx context.Context) {
	snapshot := l.collectSnapshot()

	l.mu.Lock()
	level := l.level
	l.mu.Unlock()
	params, err := thinking.ParamsFor(level)
	if err != nil {
		l.logger.Error("loop: invalid thinking level, skipping tick", "error", err)
		return
	}

	prompt := l.composePrompt(snapshot)
	tctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	system := "You are the planner for an autonomous agent runtime. " + params.SystemSuffix
	result, err := l.llm.Complete(tctx, broker.CompletionRequest{
		Model:       l.cfg.Model,
		System:      system,
		Messages:    []broker.CompletionMessage{{Role: "user", Content: prompt}},
		MaxTokens:   params.MaxTokens,
		Temperature: &params.Temperature,
	})
	if err != nil {
		l.logger.Warn("loop: llm completion failed, abandoning tick", "error", err)
		return
	}

	decision, ok := parseDecision(result.Content)
	if !ok {
		l.logger.Info("loop: unparseable planner output, treating as noop")
		return
	}

	l.execute(ctx, decision)
}

func (l *Loop) collectSnapshot() []models.Event {
	l.mu.Lock()
	sub := l.sub
	l.mu.Unlock()
	if sub == nil {
		return nil
	}

	var events []models.Event
	for len(events) < l.cfg.SnapshotSize {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
	return events
}

func (l *Loop) composePrompt(snapshot []models.Event) string {
	b, _ := json.Marshal(snapshot)
	return "Recent events:\n" + string(b) + "\n\nDecide one action: post, skill-call, dispatcher-call, or noop. Respond with JSON matching {action, method, skill, params, text}."
}

// parseDecision validates the planner's JSON output against the closed
// action set. Any structural mismatch is treated as noop.
func parseDecision(raw string) (Decision, bool) {
	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Decision{}, false
	}
	switch d.Action {
	case ActionPost, ActionSkillCall, ActionDispatch, ActionNoop:
	default:
		return Decision{}, false
	}
	return d, true
}

// execute runs the single chosen action through the dispatcher's ordinary
// correlation pathway, matching external requests.
func (l *Loop) execute(ctx context.Context, d Decision) {
	switch d.Action {
	case ActionNoop:
		return
	case ActionPost:
		l.dispatchOrLog(ctx, "post", map[string]any{"content": d.Text})
	case ActionSkillCall:
		l.dispatchOrLog(ctx, "skill", map[string]any{"skillName": d.Skill, "input": d.Params})
	case ActionDispatch:
		l.dispatchOrLog(ctx, d.Method, d.Params)
	}
}

func (l *Loop) dispatchOrLog(ctx context.Context, method string, params map[string]any) {
	_, err := l.dispatcher.Dispatch(ctx, dispatcher.Request{Method: method, Params: params})
	if err != nil {
		l.logger.Warn("loop: tick action failed", "method", method, "error", err)
	}
}
