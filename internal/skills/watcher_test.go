package skills

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForSkill(t *testing.T, r *Registry, name string) Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := r.Get(name); ok {
			return e
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("skill %q never appeared in the registry", name)
	return Entry{}
}

func TestWatcherIndexesManifestOnStart(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "greet.json", `{"name":"greet","description":"says hello","content":"..."}`)

	r := New(Config{}, nil)
	w := NewWatcher(dir, r, 50*time.Millisecond, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	e := waitForSkill(t, r, "greet")
	if e.Source != SourceLocal {
		t.Fatalf("source = %q, want local", e.Source)
	}
}

func TestWatcherPicksUpNewManifest(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{}, nil)
	w := NewWatcher(dir, r, 50*time.Millisecond, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	writeManifest(t, dir, "summarize.json", `{"name":"summarize","description":"condenses text"}`)
	waitForSkill(t, r, "summarize")
}

func TestWatcherSkipsMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken.json", `{not json`)
	writeManifest(t, dir, "good.json", `{"name":"good","description":"fine"}`)

	r := New(Config{}, nil)
	w := NewWatcher(dir, r, 50*time.Millisecond, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	waitForSkill(t, r, "good")
	if _, ok := r.Get("broken"); ok {
		t.Fatal("malformed manifest must not be indexed")
	}
}

// rejectingLoader refuses every install, standing in for a failed audit.
type rejectingLoader struct{}

func (rejectingLoader) Install(ctx context.Context, e Entry) (Entry, error) {
	return Entry{}, errors.New("audit failed")
}

func TestWatcherRespectsLoaderRejection(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "sketchy.json", `{"name":"sketchy","description":"?","content":"payload"}`)

	r := New(Config{Loader: rejectingLoader{}}, nil)
	w := NewWatcher(dir, r, 50*time.Millisecond, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	time.Sleep(200 * time.Millisecond)
	if _, ok := r.Get("sketchy"); ok {
		t.Fatal("rejected install must not reach the index")
	}
}

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
