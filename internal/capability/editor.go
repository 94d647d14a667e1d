package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/mender/internal/api"
)

// EditorAdapter makes a requested change in the checkout and captures the
// result as a new patch. Pre-patches are staged first, so the produced diff
// contains only the editor's own work and can name them as parents.
type EditorAdapter struct {
	claudeAdapter
}

// NewEditor creates the editor adapter.
func NewEditor(opts ClaudeOptions) *EditorAdapter {
	return &EditorAdapter{claudeAdapter{name: Editor, opts: opts}}
}

// Validate checks the action's arguments. An edit needs an anchor: at least
// one location to work in, or at least one pre-patch to build on.
func (e *EditorAdapter) Validate(action Action) error {
	if strings.TrimSpace(action.Instruction) == "" {
		return fmt.Errorf("editor requires an instruction")
	}
	if len(action.Locations) == 0 && len(action.PrePatches) == 0 {
		return fmt.Errorf("editor requires at least one location or pre-patch")
	}
	if action.Command != "" {
		return fmt.Errorf("editor does not take a command")
	}
	return nil
}

// Invoke runs the editor sub-agent and extracts its working-tree changes as
// a patch observation.
func (e *EditorAdapter) Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error) {
	if err := e.prepareCheckout(inv.ResolvedPatch); err != nil {
		return Failed(Editor, FailureAdapter, "prepare checkout: %v", err), nil
	}

	locations := action.Locations
	if len(locations) == 0 {
		locations = inv.KnownLocations
	}

	userPrompt := fmt.Sprintf("Task context: %s\n\nChange to make: %s\n\n%sKnown environment facts:\n%s",
		inv.Task.Description, action.Instruction,
		renderLocations(locations), renderEnvironment(inv.Environment))

	result, err := e.newLoop(false).Run(ctx, editorSystemPrompt, userPrompt, api.WorkspaceTools())
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Failed(Editor, FailureAdapter, "editor agent: %v", err), nil
	}

	diff, err := e.opts.Workspace.ExtractDiff()
	if err != nil {
		return Failed(Editor, FailureAdapter, "extract diff: %v", err), nil
	}
	if strings.TrimSpace(diff) == "" {
		return Failed(Editor, FailureAdapter, "editor made no changes"), nil
	}

	notes := strings.TrimSpace(result.Output)
	if notes == "" {
		notes = action.Instruction
	}
	return Observation{
		Action:      Editor,
		Ok:          true,
		Summary:     summarize(notes, 200),
		DiffContent: diff,
		DiffParents: action.PrePatches,
		DiffNotes:   notes,
	}, nil
}
