package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.EnsureRepo(); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	return w
}

func TestEnsureRepoCreatesBaseline(t *testing.T) {
	w := newTestWorkspace(t)

	status, err := w.GitStatus()
	if err != nil {
		t.Fatalf("GitStatus() error = %v", err)
	}
	if status.Commit == "" {
		t.Error("expected baseline commit hash, got empty")
	}
	if status.Dirty {
		t.Error("fresh baseline should not be dirty")
	}

	// Idempotent on an existing repo.
	if err := w.EnsureRepo(); err != nil {
		t.Errorf("EnsureRepo() second call error = %v", err)
	}
}

func TestExtractDiffAndReset(t *testing.T) {
	w := newTestWorkspace(t)

	diff, err := w.ExtractDiff()
	if err != nil {
		t.Fatalf("ExtractDiff() error = %v", err)
	}
	if diff != "" {
		t.Errorf("clean tree should produce empty diff, got %q", diff)
	}

	path := filepath.Join(w.Root(), "added.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	diff, err = w.ExtractDiff()
	if err != nil {
		t.Fatalf("ExtractDiff() error = %v", err)
	}
	if !strings.Contains(diff, "added.txt") {
		t.Errorf("diff missing untracked file, got:\n%s", diff)
	}
	if !strings.Contains(diff, "+hello") {
		t.Errorf("diff missing added line, got:\n%s", diff)
	}

	if err := w.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Reset() should remove untracked files")
	}
}

func TestApplyPatchRoundTrip(t *testing.T) {
	w := newTestWorkspace(t)

	path := filepath.Join(w.Root(), "added.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	diff, err := w.ExtractDiff()
	if err != nil {
		t.Fatalf("ExtractDiff() error = %v", err)
	}
	if err := w.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if err := w.CheckPatch(diff); err != nil {
		t.Fatalf("CheckPatch() error = %v", err)
	}
	if err := w.ApplyPatch(diff); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file restored by patch: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("restored content = %q, want %q", data, "hello\n")
	}
}

func TestStagePatchIsolatesNewWork(t *testing.T) {
	w := newTestWorkspace(t)

	// Capture a patch adding one file.
	if err := os.WriteFile(filepath.Join(w.Root(), "staged.txt"), []byte("base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	parent, err := w.ExtractDiff()
	if err != nil {
		t.Fatalf("ExtractDiff() error = %v", err)
	}
	if err := w.ResetToBaseline(); err != nil {
		t.Fatalf("ResetToBaseline() error = %v", err)
	}

	if err := w.StagePatch(parent); err != nil {
		t.Fatalf("StagePatch() error = %v", err)
	}

	// New work on top of the staged patch.
	if err := os.WriteFile(filepath.Join(w.Root(), "new.txt"), []byte("delta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	diff, err := w.ExtractDiff()
	if err != nil {
		t.Fatalf("ExtractDiff() error = %v", err)
	}
	if !strings.Contains(diff, "new.txt") {
		t.Errorf("diff missing new work:\n%s", diff)
	}
	if strings.Contains(diff, "staged.txt") {
		t.Errorf("diff should not include staged parent content:\n%s", diff)
	}

	// Baseline reset drops the staged commit.
	if err := w.ResetToBaseline(); err != nil {
		t.Fatalf("ResetToBaseline() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(w.Root(), "staged.txt")); !os.IsNotExist(err) {
		t.Error("ResetToBaseline() should drop staged patch content")
	}
}

func TestApplyPatchEmptyIsNoop(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.ApplyPatch(""); err != nil {
		t.Errorf("ApplyPatch(\"\") error = %v", err)
	}
}

func TestLockExclusivity(t *testing.T) {
	w := newTestWorkspace(t)

	if err := w.AcquireLock("run-a"); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if err := w.AcquireLock("run-b"); err == nil {
		t.Error("second AcquireLock() should fail while lock is held")
	}
	if err := w.ReleaseLock("run-b"); err == nil {
		t.Error("ReleaseLock() by non-holder should fail")
	}
	if err := w.ReleaseLock("run-a"); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if err := w.AcquireLock("run-b"); err != nil {
		t.Errorf("AcquireLock() after release error = %v", err)
	}
}

func TestReleaseLockWithoutLock(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.ReleaseLock("run-a"); err != nil {
		t.Errorf("ReleaseLock() without lock error = %v", err)
	}
}
