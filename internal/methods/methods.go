// Package methods wires the gateway method names ("post", "chat",
// "deploy", "defi", "research", "skill", "browser") to dispatcher
// handlers. Everything downstream of an individual method — posting casts,
// constructing a swap, fetching a timeline — is a terminal,
// protocol-specific outbound collaborator; this package defines the
// minimal interfaces those collaborators satisfy and registers the
// handlers that call through them.
package methods

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/agentrt/internal/approval"
	"github.com/nexuscore/agentrt/internal/chatsession"
	"github.com/nexuscore/agentrt/internal/dispatcher"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/internal/signer"
	"github.com/nexuscore/agentrt/internal/skills"
	"github.com/nexuscore/agentrt/internal/ssrf"
)

// ChainClient constructs and broadcasts an on-chain transaction once an
// intent has cleared the approval manager. It is a named outbound
// collaborator (contract deploys, token transfers); its wire shape is
// protocol-specific — only the contract it must satisfy is defined here.
type ChainClient interface {
	Deploy(ctx context.Context, template string, params map[string]any, sig []byte) (address, txHash string, err error)
}

// DefiClient answers portfolio/market queries. Terminal leaf.
type DefiClient interface {
	Query(ctx context.Context, query string) (portfolio any, err error)
}

// ResearchClient produces token/address analysis. Terminal leaf.
type ResearchClient interface {
	Analyze(ctx context.Context, token, address string) (analysis any, err error)
}

// BrowserDriver executes one browser-automation action. Navigate targets are
// validated by Network Safety before this is ever called.
type BrowserDriver interface {
	Do(ctx context.Context, action string, params map[string]any) (any, error)
}

// SkillExecutor runs one installed skill by name. Skills are indexed by
// internal/skills.Registry; execution is a separate concern this map
// supplies, since a skill Entry carries metadata, not a callable.
type SkillExecutor func(ctx context.Context, input map[string]any) (any, error)

// Poster hands one outbound social post's text to whichever
// internal/channels adapter is designated the default poster.
type Poster interface {
	Post(ctx context.Context, content string) error
}

// Deps bundles every collaborator the seven methods need. Nil fields are
// valid: a method whose collaborator is nil returns a not_found-flavored
// contract error rather than panicking.
type Deps struct {
	Sessions   func(sessionID string) *chatsession.Session
	Approvals  *approval.Manager
	Signer     signer.Signer
	Chain      ChainClient
	Defi       DefiClient
	Research   ResearchClient
	Skills     *skills.Registry
	SkillExecs map[string]SkillExecutor
	Browser    BrowserDriver
	Fetcher    *ssrf.Limiter
	Poster     Poster
}

// Register installs all seven methods into d. Call before d.Seal().
func Register(d *dispatcher.Dispatcher, deps Deps) error {
	regs := []struct {
		name     string
		handler  dispatcher.Handler
		deadline time.Duration
	}{
		{"post", handlePost(deps), 15 * time.Second},
		{"chat", handleChat(deps), 30 * time.Second},
		{"deploy", handleDeploy(deps), 60 * time.Second},
		{"defi", handleDefi(deps), 15 * time.Second},
		{"research", handleResearch(deps), 15 * time.Second},
		{"skill", handleSkill(deps), 30 * time.Second},
		{"browser", handleBrowser(deps), 20 * time.Second},
	}
	for _, r := range regs {
		if err := d.Register(r.name, r.handler, r.deadline, nil); err != nil {
			return fmt.Errorf("methods: register %s: %w", r.name, err)
		}
	}
	return nil
}

func handlePost(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Poster == nil {
			return nil, rterr.New(rterr.KindNotFound, "no outbound poster configured")
		}
		content, _ := params["content"].(string)
		if content == "" {
			return nil, rterr.New(rterr.KindInvalidParams, "post requires content")
		}
		if err := deps.Poster.Post(ctx, content); err != nil {
			return nil, err
		}
		return map[string]any{"posted": true}, nil
	}
}

func handleChat(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Sessions == nil {
			return nil, rterr.New(rterr.KindNotFound, "no chat session factory configured")
		}
		message, _ := params["message"].(string)
		if message == "" {
			message, _ = params["prompt"].(string)
		}
		if message == "" {
			return nil, rterr.New(rterr.KindInvalidParams, "chat requires message or prompt")
		}
		sessionID, _ := params["sessionId"].(string)
		if sessionID == "" {
			sessionID = "default"
		}
		sess := deps.Sessions(sessionID)
		if sess == nil {
			return nil, rterr.New(rterr.KindNotFound, "unknown session")
		}
		reply, err := sess.HandleMessage(ctx, sessionID, message)
		if err != nil {
			return nil, err
		}
		return map[string]any{"content": reply}, nil
	}
}

func handleDeploy(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Approvals == nil || deps.Chain == nil || deps.Signer == nil {
			return nil, rterr.New(rterr.KindNotFound, "deploy pathway not configured")
		}
		template, _ := params["template"].(string)
		if template == "" {
			return nil, rterr.New(rterr.KindInvalidParams, "deploy requires template")
		}
		deployParams, _ := params["params"].(map[string]any)

		// prepare -> request approval -> on approval, sign and send
		rec, err := deps.Approvals.Submit(ctx, approval.Intent{
			Operation: "deploy",
			To:        template,
			Chain:     stringParam(deployParams, "chain"),
		}, "gateway")
		if err != nil {
			return nil, err
		}
		switch rec.State {
		case approval.StateRejected:
			return nil, rterr.New(rterr.KindRejected, "deploy intent rejected")
		case approval.StateExpired:
			return nil, rterr.New(rterr.KindExpired, "deploy intent expired")
		case approval.StateApproved:
			// auto-approved or already resolved; proceed to sign and send.
		default:
			// Pending: nothing is signed until the owner resolves the
			// record (gateway "approval" method); the caller retries the
			// deploy once it is approved.
			return map[string]any{
				"status":     "awaiting_approval",
				"approvalId": rec.ID,
				"expiresAt":  rec.ExpiresAt,
			}, nil
		}

		digest := []byte(template + rec.ID)
		sig, err := deps.Signer.SignMessage(ctx, digest)
		if err != nil {
			return nil, err
		}
		address, txHash, err := deps.Chain.Deploy(ctx, template, deployParams, sig)
		if err != nil {
			return nil, err
		}
		_ = deps.Approvals.MarkExecuted(rec.ID)
		return map[string]any{"address": address, "txHash": txHash}, nil
	}
}

func handleDefi(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Defi == nil {
			return nil, rterr.New(rterr.KindNotFound, "defi collaborator not configured")
		}
		query, _ := params["query"].(string)
		portfolio, err := deps.Defi.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"query":     query,
			"portfolio": portfolio,
			"timestamp": time.Now().UTC(),
		}, nil
	}
}

func handleResearch(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Research == nil {
			return nil, rterr.New(rterr.KindNotFound, "research collaborator not configured")
		}
		token, _ := params["token"].(string)
		address, _ := params["address"].(string)
		analysis, err := deps.Research.Analyze(ctx, token, address)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"analysis":  analysis,
			"timestamp": time.Now().UTC(),
		}, nil
	}
}

func handleSkill(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Skills == nil {
			return nil, rterr.New(rterr.KindNotFound, "skill registry not configured")
		}
		name, _ := params["skillName"].(string)
		if name == "" {
			return nil, rterr.New(rterr.KindInvalidParams, "skill requires skillName")
		}
		input, _ := params["input"].(map[string]any)

		entry, ok := deps.Skills.Get(name)
		if !ok {
			match, found := deps.Skills.FindAndLoad(ctx, name)
			if !found {
				return nil, rterr.New(rterr.KindNotFound, "no skill matches "+name)
			}
			entry = match
		}
		exec, ok := deps.SkillExecs[entry.Name]
		if !ok {
			return nil, rterr.New(rterr.KindNotFound, "skill has no registered executor: "+entry.Name)
		}
		return exec(ctx, input)
	}
}

func handleBrowser(deps Deps) dispatcher.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		if deps.Browser == nil || deps.Fetcher == nil {
			return nil, rterr.New(rterr.KindNotFound, "browser automation not configured")
		}
		action, _ := params["action"].(string)
		if action == "" {
			return nil, rterr.New(rterr.KindInvalidParams, "browser requires action")
		}
		if action == "navigate" {
			url, _ := params["url"].(string)
			if err := deps.Fetcher.IsBrowserNavigationAllowed(ctx, url); err != nil {
				return nil, err
			}
		}
		return deps.Browser.Do(ctx, action, params)
	}
}

func stringParam(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// NewCorrelationID is a convenience wrapper kept next to the handlers that
// most often need a fresh id outside the dispatcher's own assignment path
// (e.g. sub-agent task ids minted by a skill executor).
func NewCorrelationID() string {
	return uuid.NewString()
}
