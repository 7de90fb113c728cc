package thinking

import "testing"

func TestParamsForTotalOverClosedSet(t *testing.T) {
	for _, level := range Ordered() {
		if _, err := ParamsFor(level); err != nil {
			t.Errorf("ParamsFor(%s) returned error: %v", level, err)
		}
	}
}

func TestParamsForUnknownLevel(t *testing.T) {
	if _, err := ParamsFor(Level("nonexistent")); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestMonotonicNondecreasing(t *testing.T) {
	levels := Ordered()
	prevTemp := -1.0
	prevTokens := -1
	for _, level := range levels {
		p, err := ParamsFor(level)
		if err != nil {
			t.Fatalf("ParamsFor(%s): %v", level, err)
		}
		if p.Temperature < prevTemp {
			t.Errorf("temperature not monotonic nondecreasing at %s: %f < %f", level, p.Temperature, prevTemp)
		}
		if p.MaxTokens < prevTokens {
			t.Errorf("max_tokens not monotonic nondecreasing at %s: %d < %d", level, p.MaxTokens, prevTokens)
		}
		prevTemp = p.Temperature
		prevTokens = p.MaxTokens
	}
}

func TestParseRenderRoundTrip(t *testing.T) {
	for _, level := range Ordered() {
		rendered := RenderCommand(level)
		parsed, ok := ParseCommand(rendered)
		if !ok {
			t.Errorf("ParseCommand(%q) did not parse", rendered)
			continue
		}
		if parsed != level {
			t.Errorf("round trip mismatch: %s -> %q -> %s", level, rendered, parsed)
		}
	}
}

func TestParseCommandRejectsOrdinaryText(t *testing.T) {
	if _, ok := ParseCommand("hello, how's it going?"); ok {
		t.Error("expected ordinary chat text to not parse as a command")
	}
}

func TestParseCommandRejectsUnknownLevel(t *testing.T) {
	if _, ok := ParseCommand("thinking:ultra"); ok {
		t.Error("expected unknown level to fail to parse")
	}
}

func TestDefaultLevelIsMedium(t *testing.T) {
	if Default != Medium {
		t.Errorf("expected default level medium, got %s", Default)
	}
}
