package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestWatcher_Track(t *testing.T) {
	dir := t.TempDir()
	shared := filepath.Join(dir, "shared", "jquery.js")
	luma := filepath.Join(dir, "luma", "main.js")
	shop := filepath.Join(dir, "shop", "main.js")
	for _, f := range []string{shared, luma, shop} {
		writeFile(t, f, "define([], function () {});")
	}

	w, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	if err := w.Track("Magento/luma", []string{luma, shared, shared}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if err := w.Track("Acme/shop", []string{shop, shared}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	if diff := cmp.Diff([]string{luma, shared, shop}, w.WatchedFiles()); diff != "" {
		t.Errorf("WatchedFiles() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Acme/shop", "Magento/luma"}, w.Affected(shared)); diff != "" {
		t.Errorf("Affected(shared) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Magento/luma"}, w.Affected(luma)); diff != "" {
		t.Errorf("Affected(luma) mismatch (-want +got):\n%s", diff)
	}

	// Retracking replaces the old file set.
	if err := w.Track("Magento/luma", []string{luma}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Acme/shop"}, w.Affected(shared)); diff != "" {
		t.Errorf("Affected(shared) after retrack mismatch (-want +got):\n%s", diff)
	}

	w.Untrack("Acme/shop")
	if got := w.Affected(shop); len(got) != 0 {
		t.Errorf("Affected(shop) after Untrack = %v, want none", got)
	}
	if diff := cmp.Diff([]string{luma}, w.WatchedFiles()); diff != "" {
		t.Errorf("WatchedFiles() after Untrack mismatch (-want +got):\n%s", diff)
	}
}

func TestWatcher_Changes(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.js")
	other := filepath.Join(dir, "other.js")
	writeFile(t, main, "define([], function () {});")

	w, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()
	if err := w.Track("Magento/luma", []string{main}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	// Untracked files in a watched directory are ignored.
	writeFile(t, other, "x")
	writeFile(t, main, "define(['jquery'], function () {});")

	select {
	case c := <-w.Changes:
		if c.File != main {
			t.Errorf("Change.File = %q, want %q", c.File, main)
		}
		if diff := cmp.Diff([]string{"Magento/luma"}, c.Themes); diff != "" {
			t.Errorf("Change.Themes mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change")
	}
}

func TestLoop(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	b := filepath.Join(dir, "b.js")
	writeFile(t, a, "")
	writeFile(t, b, "")

	w, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rebuilt := make(chan []string, 10)
	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, w, 200*time.Millisecond, func(_ context.Context, themes []string) {
			rebuilt <- themes
		}, nil)
	}()

	// Feed changes directly so the batch is deterministic.
	w.Changes <- Change{File: a, Themes: []string{"Magento/luma"}}
	w.Changes <- Change{File: b, Themes: []string{"Acme/shop", "Magento/luma"}}

	select {
	case got := <-rebuilt:
		if diff := cmp.Diff([]string{"Acme/shop", "Magento/luma"}, got); diff != "" {
			t.Errorf("rebuild themes mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a rebuild")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Loop() error = %v, want context.Canceled", err)
	}
}
