package subagent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/nexuscore/agentrt/internal/rterr"
)

// TaskHandler executes one task inside a worker process. It runs on the
// worker's single message loop; at most one task is live at a time, so the
// handler never races with itself.
type TaskHandler func(ctx context.Context, env *WorkerEnv, taskID string, task json.RawMessage) (json.RawMessage, error)

// WorkerEnv is the child-side view of the IPC contract: the role and
// capability set the supervisor granted in init, plus the outbound calls a
// task may make through the parent.
type WorkerEnv struct {
	Role         Role
	Capabilities []Capability

	w *worker
}

// Can reports whether the granted capability set contains c. Handlers
// should check before exercising a capability; the supervisor drops
// ungranted requests silently, so the child sees no error either way.
func (e *WorkerEnv) Can(c Capability) bool {
	return hasCapability(e.Capabilities, c)
}

// Complete proxies one LLM completion through the supervisor, which calls
// the secrets broker with its own credentials. The worker never holds an
// API key.
func (e *WorkerEnv) Complete(prompt string, params json.RawMessage) (string, error) {
	return e.w.llmRequest(prompt, params)
}

// WriteWorkspace asks the supervisor to write content at the
// workspace-relative path. The request is fire-and-forget: capability and
// jail violations are dropped on the parent side with no reply.
func (e *WorkerEnv) WriteWorkspace(path, content string) error {
	return e.w.write(envelope{Type: msgWorkspaceWrite, Path: path, Content: content})
}

// worker is the child-side message loop state.
type worker struct {
	in  *bufio.Reader
	out io.Writer

	outMu sync.Mutex

	env       *WorkerEnv
	handler   TaskHandler
	taskCount int
}

// RunWorker runs the child side of the sub-agent IPC protocol over the
// given streams (stdin/stdout when launched by the supervisor): await
// init, announce ready, then serve tasks until shutdown or stream close.
//
// This is the counterpart of Supervisor's parent-side loop: an
// out-of-process executor speaking a framed protocol on its standard
// streams, holding no credentials of its own.
func RunWorker(ctx context.Context, in io.Reader, out io.Writer, handler TaskHandler) error {
	w := &worker{in: bufio.NewReader(in), out: out, handler: handler}

	init, err := readEnvelope(w.in)
	if err != nil {
		return fmt.Errorf("worker: read init: %w", err)
	}
	if init.Type != msgInit {
		return rterr.New(rterr.KindFramingError, "first message must be init, got "+string(init.Type))
	}
	w.env = &WorkerEnv{Role: init.Role, Capabilities: init.Capabilities, w: w}

	if err := w.write(envelope{Type: msgReady}); err != nil {
		return fmt.Errorf("worker: send ready: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env, err := readEnvelope(w.in)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker: read: %w", err)
		}
		switch env.Type {
		case msgTask:
			w.serveTask(ctx, env)
		case msgShutdown:
			return w.write(envelope{Type: msgShutdown, TaskCount: w.taskCount})
		default:
			// Unknown parent messages are skipped, not fatal: the protocol
			// may grow fields the child does not yet speak.
		}
	}
}

func (w *worker) serveTask(ctx context.Context, env envelope) {
	w.taskCount++
	result, err := w.handler(ctx, w.env, env.TaskID, env.Task)
	reply := envelope{Type: msgTaskResult, TaskID: env.TaskID}
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Result = result
	}
	// A failed write means the parent side of the pipe is gone; the read
	// loop will observe EOF next.
	_ = w.write(reply)
}

// llmRequest sends llm_request and blocks the message loop until the
// matching llm_result arrives. Because at most one task is live, blocking
// here cannot starve another task; a shutdown arriving mid-wait aborts the
// completion with an error and is handled by the caller returning.
func (w *worker) llmRequest(prompt string, params json.RawMessage) (string, error) {
	reqID := uuid.NewString()
	if err := w.write(envelope{Type: msgLLMRequest, ReqID: reqID, Prompt: prompt, Params: params}); err != nil {
		return "", err
	}
	for {
		env, err := readEnvelope(w.in)
		if err != nil {
			return "", fmt.Errorf("worker: await llm_result: %w", err)
		}
		switch env.Type {
		case msgLLMResult:
			if env.ReqID != reqID {
				continue
			}
			if env.Error != "" {
				return "", rterr.New(rterr.KindBrokerUnavailable, env.Error)
			}
			return env.Content, nil
		case msgShutdown:
			return "", rterr.New(rterr.KindCancelled, "shutdown while awaiting completion")
		default:
			continue
		}
	}
}

func (w *worker) write(env envelope) error {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	return writeEnvelope(w.out, env)
}
