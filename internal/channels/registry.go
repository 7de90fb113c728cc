package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/agentrt/internal/approval"
)

// Registry holds the configured outbound adapters keyed by type. At most
// one adapter is designated the approval notifier; the others are reachable
// by name for the gateway's post/chat handlers.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
	owner    ChannelType
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ChannelType]Adapter)}
}

// Register adds or replaces the adapter for its type.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// SetOwnerChannel designates which registered adapter carries approval
// notifications and owner-only chat replies.
func (r *Registry) SetOwnerChannel(t ChannelType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = t
}

func (r *Registry) Get(t ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// Send dispatches msg through the named channel.
func (r *Registry) Send(ctx context.Context, t ChannelType, msg OutboundMessage) error {
	a, ok := r.Get(t)
	if !ok {
		return fmt.Errorf("channels: no adapter registered for %s", t)
	}
	return a.Send(ctx, msg)
}

// ApprovalNotifier adapts the owner channel into approval.Notifier.
type ApprovalNotifier struct {
	registry *Registry
}

func NewApprovalNotifier(r *Registry) *ApprovalNotifier {
	return &ApprovalNotifier{registry: r}
}

func (n *ApprovalNotifier) NotifyPending(ctx context.Context, rec *approval.Record) error {
	n.registry.mu.RLock()
	owner := n.registry.owner
	a, ok := n.registry.adapters[owner]
	n.registry.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channels: no owner channel configured for approval notifications")
	}
	digest := dataDigest(rec.Intent.Data)
	return a.NotifyApproval(ctx, ApprovalSummary{
		ApprovalID:   rec.ID,
		Operation:    rec.Intent.Operation,
		To:           rec.Intent.To,
		Value:        rec.Intent.Value,
		DataDigest:   digest,
		TTLRemaining: rec.ExpiresAt.Sub(rec.CreatedAt).String(),
	})
}

func dataDigest(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	const max = 8
	if len(data) > max {
		data = data[:max]
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(out)
}
