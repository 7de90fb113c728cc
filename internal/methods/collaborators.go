package methods

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/agentrt/internal/channels"
)

// ChannelPoster adapts an internal/channels.Registry into Poster, posting
// through whichever adapter is registered as the default poster channel.
type ChannelPoster struct {
	Registry *channels.Registry
	Channel  channels.ChannelType
}

func (p *ChannelPoster) Post(ctx context.Context, content string) error {
	return p.Registry.Send(ctx, p.Channel, channels.OutboundMessage{Text: content})
}

// MockChainClient is a development/test ChainClient: it fabricates a
// deterministic address and transaction hash instead of broadcasting
// anything. It stands in for a real chain client during local development.
type MockChainClient struct{}

func (MockChainClient) Deploy(ctx context.Context, template string, params map[string]any, sig []byte) (string, string, error) {
	return fmt.Sprintf("0xMOCK%x", len(template)), fmt.Sprintf("0xTXMOCK%x", len(sig)), nil
}

// MockDefiClient is a development/test DefiClient.
type MockDefiClient struct{}

func (MockDefiClient) Query(ctx context.Context, query string) (any, error) {
	return map[string]any{"query": query, "holdings": []any{}}, nil
}

// MockResearchClient is a development/test ResearchClient.
type MockResearchClient struct{}

func (MockResearchClient) Analyze(ctx context.Context, token, address string) (any, error) {
	return map[string]any{"token": token, "address": address, "summary": "no analysis configured"}, nil
}

// MockBrowserDriver is a development/test BrowserDriver: it records the last
// action instead of driving a real browser.
type MockBrowserDriver struct {
	LastAction string
	LastParams map[string]any
}

func (m *MockBrowserDriver) Do(ctx context.Context, action string, params map[string]any) (any, error) {
	m.LastAction = action
	m.LastParams = params
	return map[string]any{"action": action, "at": time.Now().UTC()}, nil
}
