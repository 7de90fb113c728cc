package channels

import (
	"context"
	"sync"
)

// Mock is an in-memory Adapter used by tests and by deployments that have
// no owner channel configured: Send and NotifyApproval record their inputs
// instead of reaching a network.
type Mock struct {
	mu        sync.Mutex
	Sent      []OutboundMessage
	Approvals []ApprovalSummary
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Type() ChannelType { return ChannelMock }

func (m *Mock) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

func (m *Mock) NotifyApproval(ctx context.Context, summary ApprovalSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Approvals = append(m.Approvals, summary)
	return nil
}

func (m *Mock) SentMessages() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

func (m *Mock) PendingApprovals() []ApprovalSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ApprovalSummary, len(m.Approvals))
	copy(out, m.Approvals)
	return out
}
