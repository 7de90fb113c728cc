package channels

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession is the subset of *discordgo.Session this adapter calls,
// kept narrow so tests can stub it.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordConfig configures the Discord outbound adapter.
type DiscordConfig struct {
	Token           string
	DefaultChannel  string // recipient used when OutboundMessage.Recipient is empty
	ApprovalChannel string // channel id the owner watches for approval prompts
}

// Discord is a terminal outbound collaborator: it posts text into a guild
// channel. It does not read inbound messages.
type Discord struct {
	cfg     DiscordConfig
	session discordSession
}

// NewDiscord opens a session against the Discord gateway. Callers close it
// via Close when the runtime shuts down.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	sess, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	if err := sess.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return &Discord{cfg: cfg, session: sess}, nil
}

func (d *Discord) Type() ChannelType { return ChannelDiscord }

func (d *Discord) Send(ctx context.Context, msg OutboundMessage) error {
	channelID := msg.Recipient
	if channelID == "" {
		channelID = d.cfg.DefaultChannel
	}
	if channelID == "" {
		return fmt.Errorf("discord: no channel configured for send")
	}
	_, err := d.session.ChannelMessageSend(channelID, msg.Text)
	return err
}

func (d *Discord) NotifyApproval(ctx context.Context, summary ApprovalSummary) error {
	channelID := d.cfg.ApprovalChannel
	if channelID == "" {
		channelID = d.cfg.DefaultChannel
	}
	if channelID == "" {
		return fmt.Errorf("discord: no approval channel configured")
	}
	text := fmt.Sprintf("approval %s: %s %s value=%d data=%s ttl=%s",
		summary.ApprovalID, summary.Operation, summary.To, summary.Value, summary.DataDigest, summary.TTLRemaining)
	_, err := d.session.ChannelMessageSend(channelID, text)
	return err
}

func (d *Discord) Close() error {
	if s, ok := d.session.(*discordgo.Session); ok {
		return s.Close()
	}
	return nil
}
