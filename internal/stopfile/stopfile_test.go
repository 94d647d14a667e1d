package stopfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatchDetectsMarkerCreation(t *testing.T) {
	root := t.TempDir()
	w, err := Watch(root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if w.ShouldStop() {
		t.Fatal("ShouldStop true before any marker")
	}
	if err := RequestStop(root); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	if !waitFor(t, w.ShouldStop) {
		t.Fatal("marker creation not observed")
	}
}

func TestWatchSeesPreexistingMarker(t *testing.T) {
	root := t.TempDir()
	if err := RequestStop(root); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}

	w, err := Watch(root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if !w.ShouldStop() {
		t.Fatal("pre-existing marker not observed at startup")
	}
}

func TestStopLatchesAfterMarkerRemoval(t *testing.T) {
	root := t.TempDir()
	w, err := Watch(root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := RequestStop(root); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	if !waitFor(t, w.ShouldStop) {
		t.Fatal("marker creation not observed")
	}
	if err := ClearMarker(root); err != nil {
		t.Fatalf("ClearMarker: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if !w.ShouldStop() {
		t.Fatal("stop request should latch for the lifetime of the watcher")
	}
}

func TestIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	w, err := Watch(root)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	other := filepath.Join(root, SignalDir, "pause")
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if w.ShouldStop() {
		t.Fatal("unrelated file tripped the stop check")
	}
}

func TestClearMarkerMissingIsNoop(t *testing.T) {
	if err := ClearMarker(t.TempDir()); err != nil {
		t.Fatalf("ClearMarker on clean tree: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := Watch(t.TempDir())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
