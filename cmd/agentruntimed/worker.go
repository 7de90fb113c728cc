// worker.go is the child-side entry the supervisor spawns for each
// sub-agent: it speaks the framed IPC protocol on stdin/stdout and
// executes tasks for whatever role the init message grants. It holds no
// credentials; LLM calls are proxied through the parent.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nexuscore/agentrt/internal/ssrf"
	"github.com/nexuscore/agentrt/internal/subagent"
)

// workerTask is the loose task payload the runtime sends to a sub-agent:
// an instruction plus optional inputs the role knows how to use.
type workerTask struct {
	Instruction string   `json:"instruction"`
	URLs        []string `json:"urls,omitempty"`
	OutputPath  string   `json:"output_path,omitempty"`
}

func runWorkerProcess(ctx context.Context) error {
	return subagent.RunWorker(ctx, os.Stdin, os.Stdout, executeWorkerTask)
}

// executeWorkerTask is role-generic: it fetches whatever URLs the task
// names (when the role may), asks the parent-proxied LLM to do the
// instructed work, and writes the output to the workspace (when the role
// may). The supervisor enforces capabilities on its side too; checking
// here just avoids sending requests that would be silently dropped.
func executeWorkerTask(ctx context.Context, env *subagent.WorkerEnv, taskID string, task json.RawMessage) (json.RawMessage, error) {
	var t workerTask
	if err := json.Unmarshal(task, &t); err != nil {
		return nil, fmt.Errorf("task payload: %w", err)
	}
	if t.Instruction == "" {
		return nil, fmt.Errorf("task has no instruction")
	}

	var sources string
	if len(t.URLs) > 0 && env.Can(subagent.CapHTTPFetch) {
		fetcher := ssrf.NewLimiter()
		for _, u := range t.URLs {
			fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			res, err := fetcher.SafeFetch(fetchCtx, u)
			cancel()
			if err != nil {
				sources += fmt.Sprintf("\n[%s: unavailable]", u)
				continue
			}
			sources += "\n" + string(res.Body)
			if res.Truncated {
				sources += fmt.Sprintf("\n[%s: truncated]", u)
			}
		}
	}

	content := t.Instruction
	if env.Can(subagent.CapLLM) {
		prompt := t.Instruction
		if sources != "" {
			prompt += "\n\nSource material:" + sources
		}
		out, err := env.Complete(prompt, nil)
		if err != nil {
			return nil, err
		}
		content = out
	}

	if t.OutputPath != "" && env.Can(subagent.CapWorkspaceWrite) {
		if err := env.WriteWorkspace(t.OutputPath, content); err != nil {
			return nil, err
		}
	}

	return json.Marshal(map[string]any{
		"task_id": taskID,
		"role":    env.Role,
		"content": content,
	})
}
