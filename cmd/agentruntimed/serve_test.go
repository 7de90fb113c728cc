package main

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/approval"
	"github.com/nexuscore/agentrt/internal/dispatcher"
)

func TestParseEthAmount(t *testing.T) {
	cases := []struct {
		in   any
		want uint64
	}{
		{"1", 1e18},
		{"0.005", 5e15},
		{0.5, 5e17},
		{"not-a-number", 0},
		{"-3", 0},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := parseEthAmount(tc.in); got != tc.want {
			t.Errorf("parseEthAmount(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestScrubEnvironmentRemovesConfiguredNames(t *testing.T) {
	t.Setenv("AGENTRT_TEST_SECRET", "hunter2")
	t.Setenv("AGENTRT_TEST_KEEP", "visible")

	scrubEnvironment([]string{"AGENTRT_TEST_SECRET", "AGENTRT_TEST_ABSENT"}, slog.Default())

	if _, present := os.LookupEnv("AGENTRT_TEST_SECRET"); present {
		t.Fatal("scrubbed variable still present")
	}
	if v := os.Getenv("AGENTRT_TEST_KEEP"); v != "visible" {
		t.Fatalf("unrelated variable disturbed: %q", v)
	}
}

func TestApprovalMethodResolvesPendingRecord(t *testing.T) {
	approvals := approval.NewManager(approval.DefaultPolicy(), nil)
	d := dispatcher.New(5 * time.Second)
	if err := registerApprovalMethod(d, approvals); err != nil {
		t.Fatalf("register: %v", err)
	}
	d.Seal()

	rec, err := approvals.Submit(context.Background(), approval.Intent{Operation: "deploy", To: "0xBB"}, "test")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.State != approval.StatePending {
		t.Fatalf("state = %s, want pending", rec.State)
	}

	result, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "approval",
		Params: map[string]any{"action": "approve", "approvalId": rec.ID},
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	out, _ := result.(map[string]any)
	if out["state"] != approval.StateApproved {
		t.Fatalf("resolved state = %v, want approved", out["state"])
	}

	// A second resolution reports the terminal outcome as an error kind.
	if _, err := d.Dispatch(context.Background(), dispatcher.Request{
		Method: "approval",
		Params: map[string]any{"action": "reject", "approvalId": rec.ID},
	}); err == nil {
		t.Fatal("expected already-resolved error on second resolution")
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := resolveConfigPath("explicit.yaml"); got != "explicit.yaml" {
		t.Fatalf("flag value not honored: %q", got)
	}
	t.Setenv("AGENTRT_CONFIG", "/etc/agentrt/env.yaml")
	if got := resolveConfigPath(""); got != "/etc/agentrt/env.yaml" {
		t.Fatalf("env fallback not honored: %q", got)
	}
	os.Unsetenv("AGENTRT_CONFIG")
	if got := resolveConfigPath(""); got != "agentrt.yaml" {
		t.Fatalf("default not honored: %q", got)
	}
}
