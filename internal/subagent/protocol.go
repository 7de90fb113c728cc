// Package subagent supervises a pool of isolated worker subprocesses that
// execute bounded task types under capability-restricted contracts. Each
// worker is a child OS process speaking a length-prefixed JSON IPC
// protocol; the supervisor enforces role whitelisting, a
// concurrency cap, environment minimization, startup/task deadlines, and
// per-message capability gating.
//
// The IPC framing is the same length-prefixed JSON wire protocol the
// broker client speaks, reused here for the parent<->child boundary. The
// concurrency cap is a channel semaphore; the live-agent table is guarded
// by one lock, with IPC handling serialized per child.
package subagent

import "encoding/json"

// Capability is a named power granted to a sub-agent role.
type Capability string

const (
	CapHTTPFetch      Capability = "http-fetch"
	CapLLM            Capability = "llm"
	CapWorkspaceWrite Capability = "workspace-write"
)

// Role is one of the closed set of sub-agent roles.
type Role string

const (
	RoleNewsCurator   Role = "news-curator"
	RoleDefiMonitor   Role = "defi-monitor"
	RoleContentCreator Role = "content-creator"
	RoleResearch      Role = "research"
)

// roleCapabilities fixes the capability set and max lifetime per role.
var roleCapabilities = map[Role]struct {
	Caps        []Capability
	MaxLifetime string // documented as a duration string; parsed at startup
}{
	RoleNewsCurator:    {Caps: []Capability{CapHTTPFetch, CapLLM}, MaxLifetime: "30m"},
	RoleDefiMonitor:    {Caps: []Capability{CapHTTPFetch, CapLLM}, MaxLifetime: "1h"},
	RoleContentCreator: {Caps: []Capability{CapLLM, CapWorkspaceWrite}, MaxLifetime: "30m"},
	RoleResearch:       {Caps: []Capability{CapHTTPFetch, CapLLM, CapWorkspaceWrite}, MaxLifetime: "1h"},
}

// IsKnownRole reports whether role is in the closed role whitelist.
func IsKnownRole(role Role) bool {
	_, ok := roleCapabilities[role]
	return ok
}

// CapabilitiesFor returns the fixed capability set for role.
func CapabilitiesFor(role Role) []Capability {
	return append([]Capability(nil), roleCapabilities[role].Caps...)
}

// hasCapability reports whether caps contains want.
func hasCapability(caps []Capability, want Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

// messageType enumerates the IPC envelope's Type field.
type messageType string

const (
	msgInit          messageType = "init"
	msgTask          messageType = "task"
	msgShutdown      messageType = "shutdown"
	msgReady         messageType = "ready"
	msgTaskResult    messageType = "task_result"
	msgLLMRequest    messageType = "llm_request"
	msgLLMResult     messageType = "llm_result"
	msgWorkspaceWrite messageType = "workspace_write"
)

// envelope is the IPC message shape, parent<->child.
type envelope struct {
	Type          messageType     `json:"type"`
	Role          Role            `json:"role,omitempty"`
	Capabilities  []Capability    `json:"capabilities,omitempty"`
	MaxLifetimeMS int64           `json:"max_lifetime_ms,omitempty"`
	TaskID        string          `json:"task_id,omitempty"`
	Task          json.RawMessage `json:"task,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ReqID         string          `json:"req_id,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	Content       string          `json:"content,omitempty"`
	Path          string          `json:"path,omitempty"`
	TaskCount     int             `json:"task_count,omitempty"`
}

// MaxEnvelopeBytes bounds one framed IPC message.
const MaxEnvelopeBytes = 1 << 20
