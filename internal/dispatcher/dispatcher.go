// Package dispatcher is the central registry and router of named methods to
// handler functions, with correlation ids, deadlines, and cancellation. It
// owns the in-flight RPC record table exclusively.
//
// Methods are registered at startup and the registry is sealed before the
// first dispatch; handler execution happens outside the table's critical
// section, under a per-request deadline and cancellation context.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/pkg/models"
)

// Handler executes one method invocation. It receives the validated params
// and a context carrying the RPC's deadline and cancellation; it must
// return promptly once ctx is done.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// methodDescriptor is the frozen registration record for one method.
type methodDescriptor struct {
	name            string
	handler         Handler
	defaultDeadline time.Duration
	schema          *jsonschema.Schema
}

// record is one in-flight RPC.
type record struct {
	correlationID string
	method        string
	cancel        context.CancelFunc
	startedAt     time.Time
}

// Dispatcher is the method registry plus in-flight tracker. The zero value
// is not usable; construct with New.
type Dispatcher struct {
	defaultDeadline time.Duration

	regMu    sync.Mutex
	sealed   bool
	methods  map[string]*methodDescriptor

	mu       sync.Mutex
	inFlight map[string]*record

	shutdownMu sync.Mutex
	shutdown   bool
}

// New constructs a Dispatcher. defaultDeadline applies to methods registered
// without an explicit per-method deadline.
func New(defaultDeadline time.Duration) *Dispatcher {
	if defaultDeadline <= 0 {
		defaultDeadline = 30 * time.Second
	}
	return &Dispatcher{
		defaultDeadline: defaultDeadline,
		methods:         make(map[string]*methodDescriptor),
		inFlight:        make(map[string]*record),
	}
}

// Register adds a method to the registry. schemaJSON may be nil to skip
// parameter validation. Register panics on a duplicate name or a
// registration attempt after Seal — these are invariant errors (programmer
// bugs), not contract errors.
func (d *Dispatcher) Register(name string, handler Handler, deadline time.Duration, schemaJSON []byte) error {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	if d.sealed {
		panic("dispatcher: register after seal: " + name)
	}
	if _, exists := d.methods[name]; exists {
		panic("dispatcher: duplicate method registration: " + name)
	}
	if deadline <= 0 {
		deadline = d.defaultDeadline
	}
	desc := &methodDescriptor{name: name, handler: handler, defaultDeadline: deadline}
	if len(schemaJSON) > 0 {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name+".json", jsonschemaReader(schemaJSON)); err != nil {
			return fmt.Errorf("add schema resource for %s: %w", name, err)
		}
		schema, err := compiler.Compile(name + ".json")
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", name, err)
		}
		desc.schema = schema
	}
	d.methods[name] = desc
	return nil
}

// Seal freezes the registry; further Register calls panic.
func (d *Dispatcher) Seal() {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	d.sealed = true
}

// Request is one incoming invocation.
type Request struct {
	CorrelationID string
	Method        string
	Params        map[string]any
}

// Dispatch resolves req.Method, validates params, creates an RPC record,
// invokes the handler under a deadline, and removes the record on
// completion.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	d.shutdownMu.Lock()
	down := d.shutdown
	d.shutdownMu.Unlock()
	if down {
		return nil, rterr.New(rterr.KindShuttingDown, "dispatcher is shutting down")
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = models.NewCorrelationID()
	}

	d.regMu.Lock()
	desc, ok := d.methods[req.Method]
	d.regMu.Unlock()
	if !ok {
		return nil, rterr.New(rterr.KindUnknownMethod, req.Method)
	}

	if desc.schema != nil {
		if err := desc.schema.Validate(toAny(req.Params)); err != nil {
			return nil, rterr.Wrap(rterr.KindInvalidParams, err.Error(), err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, desc.defaultDeadline)
	defer cancel()

	rec := &record{correlationID: correlationID, method: req.Method, cancel: cancel, startedAt: time.Now()}
	if err := d.put(correlationID, rec); err != nil {
		return nil, err
	}
	defer d.remove(correlationID)

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := desc.handler(rctx, req.Params)
		done <- outcome{val, err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-rctx.Done():
		if rctx.Err() == context.DeadlineExceeded {
			return nil, rterr.New(rterr.KindDeadlineExceeded, req.Method)
		}
		return nil, rterr.New(rterr.KindCancelled, req.Method)
	}
}

// Cancel signals the cancellation handle for a live correlation id. It is a
// no-op if the id is not currently in flight.
func (d *Dispatcher) Cancel(correlationID string) {
	d.mu.Lock()
	rec, ok := d.inFlight[correlationID]
	d.mu.Unlock()
	if ok {
		rec.cancel()
	}
}

// Shutdown refuses new requests and cancels every in-flight record. It is
// idempotent.
func (d *Dispatcher) Shutdown() {
	d.shutdownMu.Lock()
	d.shutdown = true
	d.shutdownMu.Unlock()

	d.mu.Lock()
	recs := make([]*record, 0, len(d.inFlight))
	for _, r := range d.inFlight {
		recs = append(recs, r)
	}
	d.mu.Unlock()
	for _, r := range recs {
		r.cancel()
	}
}

func (d *Dispatcher) put(id string, rec *record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inFlight[id]; exists {
		// Invariant violation: this is a bug, not
		// a contract error.
		panic("dispatcher: RPC record already present for correlation id " + id)
	}
	d.inFlight[id] = rec
	return nil
}

func (d *Dispatcher) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}

// InFlightCount reports the number of currently live RPC records, for the
// observability surface.
func (d *Dispatcher) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

func toAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
