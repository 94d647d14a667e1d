// Package capability defines the uniform contract between the orchestration
// loop and the specialized sub-agents: a closed set of action names, typed
// actions and observations, and the Adapter interface each capability
// implements. The loop dispatches by name and is agnostic to concrete
// adapters, so capabilities can be added or replaced without touching it.
package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ShayCichocki/mender/pkg/models"
)

// Name identifies one capability. The set is closed: dispatch is a
// compile-time mapping from these values to adapter implementations, not
// open-ended reflection.
type Name string

const (
	// Probe inspects the codebase and returns environment facts.
	Probe Name = "probe"
	// Locator finds code spans relevant to the task.
	Locator Name = "locator"
	// Editor produces a new patch from locations and optional parent patches.
	Editor Name = "editor"
	// TestExecutor runs a test command against a resolved patch.
	TestExecutor Name = "test_executor"
	// VCSAgent answers history queries or derives commit/merge patches.
	VCSAgent Name = "vcs"
	// Advisor diagnoses a stalled run from a transcript of recent steps.
	Advisor Name = "advisor"
)

// All returns every capability name in dispatch order.
func All() []Name {
	return []Name{Probe, Locator, Editor, TestExecutor, VCSAgent, Advisor}
}

// ParseName converts a string to a Name, rejecting unknown capabilities.
func ParseName(s string) (Name, error) {
	n := Name(strings.TrimSpace(strings.ToLower(s)))
	switch n {
	case Probe, Locator, Editor, TestExecutor, VCSAgent, Advisor:
		return n, nil
	default:
		return "", fmt.Errorf("unknown capability %q", s)
	}
}

// Action is a discriminated request to one capability adapter.
type Action struct {
	// Name selects the capability to invoke.
	Name Name `json:"name"`
	// Instruction is the natural-language directive for the capability.
	Instruction string `json:"instruction,omitempty"`
	// PrePatches lists diff-store entry IDs to apply before the capability
	// runs, in intended precedence order.
	PrePatches []string `json:"pre_patches,omitempty"`
	// Locations narrows the capability to specific code spans (editor).
	Locations []models.Location `json:"locations,omitempty"`
	// Command is an explicit command to run (test executor).
	Command string `json:"command,omitempty"`
}

// Signature returns the action's name plus a normalized digest of its
// arguments. Two actions with the same signature are considered repeats by
// stuck detection.
func (a Action) Signature() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", a.Name, normalize(a.Instruction), normalize(a.Command))
	for _, p := range a.PrePatches {
		fmt.Fprintf(h, "%s,", p)
	}
	for _, l := range a.Locations {
		fmt.Fprintf(h, "%s:%d-%d,", l.Path, l.StartLine, l.EndLine)
	}
	sum := h.Sum(nil)
	return string(a.Name) + ":" + hex.EncodeToString(sum[:8])
}

// String returns a compact human-readable form for logs and events.
func (a Action) String() string {
	parts := []string{string(a.Name)}
	if a.Instruction != "" {
		parts = append(parts, truncate(a.Instruction, 60))
	}
	if a.Command != "" {
		parts = append(parts, "cmd="+truncate(a.Command, 40))
	}
	if len(a.PrePatches) > 0 {
		parts = append(parts, "pre="+strings.Join(a.PrePatches, ","))
	}
	return strings.Join(parts, " ")
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
