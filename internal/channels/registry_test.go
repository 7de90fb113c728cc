package channels

import (
	"context"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/approval"
)

func TestRegistrySendRoutesToRegisteredAdapter(t *testing.T) {
	reg := NewRegistry()
	mock := NewMock()
	reg.Register(mock)

	if err := reg.Send(context.Background(), ChannelMock, OutboundMessage{Text: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := mock.SentMessages()
	if len(sent) != 1 || sent[0].Text != "hello" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}
}

func TestRegistrySendUnknownChannel(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Send(context.Background(), ChannelDiscord, OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error for unregistered channel")
	}
}

func TestApprovalNotifierRoutesToOwnerChannel(t *testing.T) {
	reg := NewRegistry()
	mock := NewMock()
	reg.Register(mock)
	reg.SetOwnerChannel(ChannelMock)

	notifier := NewApprovalNotifier(reg)
	rec := &approval.Record{
		ID:        "a1",
		Intent:    approval.Intent{Operation: "send", To: "0xAA", Value: 100, Data: []byte{0xde, 0xad}},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	if err := notifier.NotifyPending(context.Background(), rec); err != nil {
		t.Fatalf("NotifyPending: %v", err)
	}
	pending := mock.PendingApprovals()
	if len(pending) != 1 || pending[0].ApprovalID != "a1" {
		t.Fatalf("unexpected approvals: %+v", pending)
	}
	if pending[0].DataDigest != "dead" {
		t.Fatalf("unexpected digest: %s", pending[0].DataDigest)
	}
}

func TestApprovalNotifierNoOwnerChannel(t *testing.T) {
	reg := NewRegistry()
	notifier := NewApprovalNotifier(reg)
	rec := &approval.Record{ID: "a1", CreatedAt: time.Now(), ExpiresAt: time.Now()}
	if err := notifier.NotifyPending(context.Background(), rec); err == nil {
		t.Fatal("expected error with no owner channel configured")
	}
}
