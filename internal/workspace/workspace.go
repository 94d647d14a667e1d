// Package workspace manages the git working copy a task operates on: baseline
// setup, cleaning, patch application and extraction, and the exclusive-owner
// lock that keeps two runs from mutating the same checkout.
package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ShayCichocki/mender/pkg/models"
)

// committerName and committerEmail identify baseline commits made by mender.
const (
	committerName  = "mender"
	committerEmail = "mender@localhost"
)

// Workspace wraps one project checkout. All git operations run with the
// checkout as working directory.
type Workspace struct {
	root     string
	lockPath string
	baseline string
}

// New creates a Workspace for the checkout at root. The directory must exist.
func New(root string) (*Workspace, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	return &Workspace{
		root:     abs,
		lockPath: filepath.Join(abs, ".mender", "owner.lock"),
	}, nil
}

// Root returns the absolute checkout path.
func (w *Workspace) Root() string {
	return w.root
}

// run executes a git command in the checkout and returns its trimmed output.
func (w *Workspace) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = w.root
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// EnsureRepo makes the checkout usable as a patch base and records the
// baseline commit every task diff is measured against. A directory without a
// git repository gets one initialized and a baseline commit created;
// otherwise diff extraction has no anchor.
func (w *Workspace) EnsureRepo() error {
	if _, err := os.Stat(filepath.Join(w.root, ".git")); err != nil {
		if _, err := w.run("init", "--quiet"); err != nil {
			return fmt.Errorf("init repo: %w", err)
		}
		if _, err := w.run("config", "user.name", committerName); err != nil {
			return fmt.Errorf("configure committer: %w", err)
		}
		if _, err := w.run("config", "user.email", committerEmail); err != nil {
			return fmt.Errorf("configure committer: %w", err)
		}
		if _, err := w.run("add", "."); err != nil {
			return fmt.Errorf("stage baseline: %w", err)
		}
		if _, err := w.run("commit", "--quiet", "-m", "baseline"); err != nil {
			return fmt.Errorf("baseline commit: %w", err)
		}
	}

	commit, err := w.run("rev-parse", "HEAD")
	if err != nil {
		return fmt.Errorf("resolve baseline: %w", err)
	}
	w.baseline = commit
	return nil
}

// Baseline returns the commit recorded by EnsureRepo.
func (w *Workspace) Baseline() string {
	return w.baseline
}

// Reset discards all uncommitted changes and untracked files, restoring the
// checkout to HEAD. The .mender directory is preserved.
func (w *Workspace) Reset() error {
	if _, err := w.run("reset", "--hard", "--quiet"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if _, err := w.run("clean", "-fd", "--quiet", "-e", ".mender"); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}

// ResetToBaseline restores the checkout to the baseline commit, discarding
// staged patch commits and all working-tree changes since.
func (w *Workspace) ResetToBaseline() error {
	if w.baseline == "" {
		return fmt.Errorf("no baseline recorded; call EnsureRepo first")
	}
	if _, err := w.run("reset", "--hard", "--quiet", w.baseline); err != nil {
		return fmt.Errorf("reset to baseline: %w", err)
	}
	if _, err := w.run("clean", "-fd", "--quiet", "-e", ".mender"); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}

// StagePatch applies the patch and commits it, so a following ExtractDiff
// reports only work done after the staged patches. Empty patch is a no-op.
func (w *Workspace) StagePatch(patch string) error {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	if err := w.ApplyPatch(patch); err != nil {
		return err
	}
	if _, err := w.run("add", "-A"); err != nil {
		return fmt.Errorf("stage patch: %w", err)
	}
	// Inline identity covers pre-existing repos with no committer configured.
	if _, err := w.run("-c", "user.name="+committerName, "-c", "user.email="+committerEmail,
		"commit", "--quiet", "--no-verify", "-m", "staged parent patches"); err != nil {
		return fmt.Errorf("commit staged patch: %w", err)
	}
	return nil
}

// ExtractDiff returns the unified diff of all current changes against HEAD,
// including untracked files. Returns "" when the tree is clean.
func (w *Workspace) ExtractDiff() (string, error) {
	// Intent-to-add makes untracked files visible to git diff.
	if _, err := w.run("add", "-N", "."); err != nil {
		return "", fmt.Errorf("stage intent-to-add: %w", err)
	}
	out, err := w.run("diff", "HEAD")
	if err != nil {
		return "", fmt.Errorf("extract diff: %w", err)
	}
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}

// CheckPatch verifies the patch applies cleanly to the current tree without
// modifying anything.
func (w *Workspace) CheckPatch(patch string) error {
	return w.applyArgs(patch, "apply", "--check")
}

// ApplyPatch applies the patch to the working tree.
func (w *Workspace) ApplyPatch(patch string) error {
	return w.applyArgs(patch, "apply")
}

func (w *Workspace) applyArgs(patch string, args ...string) error {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	cmd := exec.Command("git", append(args, "-")...)
	cmd.Dir = w.root
	cmd.Stdin = strings.NewReader(patch)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// GitStatus reports the checkout's current version-control position.
func (w *Workspace) GitStatus() (models.GitStatus, error) {
	commit, err := w.run("rev-parse", "HEAD")
	if err != nil {
		return models.GitStatus{}, err
	}
	branch, err := w.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return models.GitStatus{}, err
	}
	status, err := w.run("status", "--porcelain")
	if err != nil {
		return models.GitStatus{}, err
	}
	return models.GitStatus{
		Commit: commit,
		Branch: branch,
		Dirty:  status != "",
	}, nil
}

// Log returns recent commit history, one line per commit.
func (w *Workspace) Log(n int) (string, error) {
	return w.run("log", "--oneline", fmt.Sprintf("-%d", n))
}

// AcquireLock claims exclusive ownership of the checkout for the given run.
// It fails if another live run already holds the lock; a lock left by a dead
// process is broken and re-acquired.
func (w *Workspace) AcquireLock(runID string) error {
	if err := os.MkdirAll(filepath.Dir(w.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	content := fmt.Sprintf("%s %d\n", runID, os.Getpid())
	f, err := os.OpenFile(w.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		defer f.Close()
		if _, werr := f.WriteString(content); werr != nil {
			return fmt.Errorf("write lock: %w", werr)
		}
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("acquire lock: %w", err)
	}

	holder, pid, rerr := w.readLock()
	if rerr == nil && processAlive(pid) {
		return fmt.Errorf("checkout %s already owned by run %s (pid %d)", w.root, holder, pid)
	}

	// Stale lock from a dead process.
	if err := os.WriteFile(w.lockPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("replace stale lock: %w", err)
	}
	return nil
}

// ReleaseLock releases this run's ownership. Releasing a lock held by another
// run is an error.
func (w *Workspace) ReleaseLock(runID string) error {
	holder, _, err := w.readLock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if holder != runID {
		return fmt.Errorf("lock held by run %s, not %s", holder, runID)
	}
	return os.Remove(w.lockPath)
}

func (w *Workspace) readLock() (holder string, pid int, err error) {
	data, err := os.ReadFile(w.lockPath)
	if err != nil {
		return "", 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 1 {
		holder = fields[0]
	}
	if len(fields) >= 2 {
		fmt.Sscanf(fields[1], "%d", &pid)
	}
	return holder, pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
