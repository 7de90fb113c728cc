package channels

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackConfig configures the Slack outbound adapter.
type SlackConfig struct {
	Token           string
	DefaultChannel  string
	ApprovalChannel string
}

// Slack is a terminal outbound collaborator wrapping slack-go/slack.
type Slack struct {
	cfg    SlackConfig
	client *slack.Client
}

func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack: token is required")
	}
	return &Slack{cfg: cfg, client: slack.New(cfg.Token)}, nil
}

func (s *Slack) Type() ChannelType { return ChannelSlack }

func (s *Slack) Send(ctx context.Context, msg OutboundMessage) error {
	channelID := msg.Recipient
	if channelID == "" {
		channelID = s.cfg.DefaultChannel
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel configured for send")
	}
	_, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(msg.Text, false))
	return err
}

func (s *Slack) NotifyApproval(ctx context.Context, summary ApprovalSummary) error {
	channelID := s.cfg.ApprovalChannel
	if channelID == "" {
		channelID = s.cfg.DefaultChannel
	}
	if channelID == "" {
		return fmt.Errorf("slack: no approval channel configured")
	}
	text := fmt.Sprintf("approval %s: %s %s value=%d data=%s ttl=%s",
		summary.ApprovalID, summary.Operation, summary.To, summary.Value, summary.DataDigest, summary.TTLRemaining)
	_, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	return err
}
