package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/pkg/models"
)

// VCSAdapter works the repository's history: it answers questions (log,
// blame, branches, file evolution) and carries out git operations that land
// changes in the working tree (merge, revert, cherry-pick). When an
// operation changed the tree, the change is extracted as a patch, so every
// diff this adapter returns is derived from a real git operation.
type VCSAdapter struct {
	claudeAdapter
}

// NewVCS creates the version-control adapter.
func NewVCS(opts ClaudeOptions) *VCSAdapter {
	return &VCSAdapter{claudeAdapter{name: VCSAgent, opts: opts}}
}

// Validate checks the action's arguments.
func (v *VCSAdapter) Validate(action Action) error {
	if strings.TrimSpace(action.Instruction) == "" {
		return fmt.Errorf("vcs requires an instruction")
	}
	if len(action.Locations) > 0 {
		return fmt.Errorf("vcs does not take locations")
	}
	return nil
}

// Invoke runs the version-control sub-agent. Its answer is always returned;
// when the agent's git operation left changes in the working tree, those
// changes come back as a patch observation as well.
func (v *VCSAdapter) Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error) {
	if err := v.prepareCheckout(inv.ResolvedPatch); err != nil {
		return Failed(VCSAgent, FailureAdapter, "prepare checkout: %v", err), nil
	}

	userPrompt := fmt.Sprintf("Task context: %s\n\nRequest: %s", inv.Task.Description, action.Instruction)

	result, err := v.newLoop(false).Run(ctx, vcsSystemPrompt, userPrompt, api.WorkspaceTools())
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Failed(VCSAgent, FailureAdapter, "vcs agent: %v", err), nil
	}

	answer := strings.TrimSpace(result.Output)
	if answer == "" {
		return Failed(VCSAgent, FailureAdapter, "vcs agent produced no answer"), nil
	}

	diff, err := v.opts.Workspace.ExtractDiff()
	if err != nil {
		return Failed(VCSAgent, FailureAdapter, "extract diff: %v", err), nil
	}

	var git models.GitStatus
	if g, gerr := v.opts.Workspace.GitStatus(); gerr == nil {
		git = g
	}
	return vcsObservation(answer, diff, action.PrePatches, git), nil
}

// vcsObservation assembles the adapter's result. A read-only query yields
// just the answer; an operation that changed the working tree also carries
// the extracted patch, parented on the action's pre-patches.
func vcsObservation(answer, diff string, prePatches []string, git models.GitStatus) Observation {
	obs := Observation{
		Action:  VCSAgent,
		Ok:      true,
		Summary: summarize(answer, 200),
		Answer:  answer,
	}
	if strings.TrimSpace(diff) != "" {
		obs.DiffContent = diff
		obs.DiffParents = prePatches
		obs.DiffNotes = summarize(answer, 200)
	}
	if git.Branch != "" || git.Commit != "" {
		obs.Environment = &models.Environment{Git: git}
	}
	return obs
}
