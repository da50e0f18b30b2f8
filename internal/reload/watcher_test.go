package reload

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/timzifer/motorhome/config"
)

func TestUniquePathsFiltersDuplicatesAndEmptyValues(t *testing.T) {
	paths := []string{"", "/tmp/a", "/tmp/b", "/tmp/a", "\t", "/tmp/c", "/tmp/b"}
	got := uniquePaths(paths)
	want := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniquePaths() = %v, want %v", got, want)
	}
}

func TestWatcherUpdateIncludesSourcesRootAndExtras(t *testing.T) {
	dir := t.TempDir()
	definition := filepath.Join(dir, "homing.yaml")
	slits := filepath.Join(dir, "slits.yaml")
	override := filepath.Join(dir, "home.pmc.tmpl")

	writeFile(t, definition, "plcs: []")
	writeFile(t, slits, "plcs: []")
	writeFile(t, override, "cmd")

	cfg := &config.Config{
		Plcs: []config.PlcConfig{{Plc: 11, Source: config.ModuleReference{File: slits}}},
	}

	watcher, err := NewWatcher(definition, cfg, []string{override})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	want := []string{definition, override, slits}
	sort.Strings(want)
	if got := watcher.Files(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Files() = %v, want %v", got, want)
	}
}

func TestWatcherUpdateSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")

	cfg := &config.Config{Source: config.ModuleReference{File: missing}}

	var watcher Watcher
	if err := watcher.Update("", cfg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(watcher.files) != 0 {
		t.Fatalf("expected 0 tracked files, got %d", len(watcher.files))
	}
}

func TestWatcherCheckDetectsChangesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.yaml")
	fileB := filepath.Join(dir, "b.yaml")
	writeFile(t, fileA, "first")
	writeFile(t, fileB, "second")

	cfg := &config.Config{
		Source: config.ModuleReference{File: fileA},
		Plcs:   []config.PlcConfig{{Source: config.ModuleReference{File: fileB}}},
	}

	watcher, err := NewWatcher("", cfg, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	if changed, err := watcher.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	} else if len(changed) != 0 {
		t.Fatalf("expected no changes on first check, got %v", changed)
	}

	time.Sleep(10 * time.Millisecond)
	writeFile(t, fileA, "first-UPDATED")
	if err := os.Remove(fileB); err != nil {
		t.Fatalf("Remove(%s) error = %v", fileB, err)
	}

	changed, err := watcher.Check()
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	expected := []string{fileA, fileB}
	sort.Strings(expected)
	if !reflect.DeepEqual(changed, expected) {
		t.Fatalf("Check() = %v, want %v", changed, expected)
	}
}

func TestWatcherRunReportsModifiedDefinition(t *testing.T) {
	dir := t.TempDir()
	definition := filepath.Join(dir, "homing.yaml")
	writeFile(t, definition, "plcs: []")

	watcher, err := NewWatcher(definition, &config.Config{}, nil, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan []string, 1)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(ctx, func(files []string) {
			select {
			case changes <- files:
			default:
			}
		})
	}()

	// Keep rewriting until the watcher has registered its directory.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	content := "plcs: []"
	for {
		select {
		case files := <-changes:
			if !reflect.DeepEqual(files, []string{definition}) {
				t.Fatalf("changed files = %v, want %v", files, []string{definition})
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			return
		case <-ticker.C:
			content += "\n# edit"
			writeFile(t, definition, content)
		case <-ctx.Done():
			t.Fatal("no change reported")
		}
	}
}

func TestWatcherRunBoundsContinuousBursts(t *testing.T) {
	dir := t.TempDir()
	definition := filepath.Join(dir, "homing.yaml")
	writeFile(t, definition, "plcs: []")

	watcher, err := NewWatcher(definition, &config.Config{}, nil,
		WithDebounce(200*time.Millisecond), WithMaxWait(400*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan []string, 1)
	done := make(chan error, 1)
	go func() {
		done <- watcher.Run(ctx, func(files []string) {
			select {
			case changes <- files:
			default:
			}
		})
	}()

	// Writes arrive faster than the debounce for the whole test, so only
	// the max wait can trigger a check.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	content := "plcs: []"
	for {
		select {
		case files := <-changes:
			if !reflect.DeepEqual(files, []string{definition}) {
				t.Fatalf("changed files = %v, want %v", files, []string{definition})
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			return
		case <-ticker.C:
			content += "\n# edit"
			writeFile(t, definition, content)
		case <-ctx.Done():
			t.Fatal("continuous writes postponed the check indefinitely")
		}
	}
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var watcher *Watcher
	if err := watcher.Update("", &config.Config{}); err != nil {
		t.Fatalf("nil watcher Update() error = %v", err)
	}
	if changed, err := watcher.Check(); err != nil {
		t.Fatalf("nil watcher Check() error = %v", err)
	} else if changed != nil {
		t.Fatalf("expected nil slice from nil watcher, got %v", changed)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
