package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/pkg/models"
)

// stubRun installs a run function so no real Chrome is needed.
func stubRun(d *Driver, fn func(ctx context.Context, actions ...chromedp.Action) error) {
	d.mu.Lock()
	d.run = fn
	d.mu.Unlock()
}

func noopRun(context.Context, ...chromedp.Action) error { return nil }

func TestDoRejectsUnknownAction(t *testing.T) {
	d := New(Config{}, nil, nil)
	stubRun(d, noopRun)

	_, err := d.Do(context.Background(), "teleport", nil)
	if !errors.Is(err, rterr.New(rterr.KindInvalidParams, "")) {
		t.Fatalf("expected invalid_params, got %v", err)
	}
}

func TestDoValidatesRequiredParams(t *testing.T) {
	d := New(Config{}, nil, nil)
	stubRun(d, noopRun)

	cases := []struct {
		name   string
		action string
		params map[string]any
	}{
		{"navigate without url", "navigate", map[string]any{}},
		{"click without selector", "click", map[string]any{}},
		{"fill without value", "fill", map[string]any{"selector": "#q"}},
		{"eval without expression", "eval", map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Do(context.Background(), tc.action, tc.params)
			if !errors.Is(err, rterr.New(rterr.KindInvalidParams, "")) {
				t.Fatalf("expected invalid_params, got %v", err)
			}
		})
	}
}

func TestSnapshotPublishesBusEvent(t *testing.T) {
	b := bus.New(8)
	sub := b.Subscribe(models.TopicBrowserSnapshot)
	defer sub.Unsubscribe()

	d := New(Config{}, b, nil)
	stubRun(d, noopRun)

	if _, err := d.Do(context.Background(), "snapshot", nil); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	select {
	case ev := <-sub.C:
		if ev.Topic != models.TopicBrowserSnapshot {
			t.Fatalf("wrong topic %q", ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("no browser:snapshot event published")
	}
}

func TestRunErrorsSurfaceToCaller(t *testing.T) {
	d := New(Config{}, nil, nil)
	stubRun(d, func(context.Context, ...chromedp.Action) error {
		return errors.New("tab crashed")
	})

	if _, err := d.Do(context.Background(), "extract", map[string]any{"selector": "h1"}); err == nil {
		t.Fatal("expected extract to propagate the run error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := New(Config{}, nil, nil)
	d.Close()
	d.Close()
}
