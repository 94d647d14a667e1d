package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/internal/capability"
	"github.com/ShayCichocki/mender/internal/taskstate"
	"github.com/ShayCichocki/mender/pkg/models"
)

const plannerSystemPrompt = `You are the controller of an automated software engineering session. You never touch code yourself; you direct specialist agents and judge their results.

Available capabilities:
- probe: answers a question about the project and discovers build/test/run/lint commands and package managers.
- locator: finds the code spans relevant to an instruction.
- editor: makes a described change and produces a patch. Every invocation needs at least one location or pre_patch: give it pre_patches to build on earlier patches, and locations when you know where to work.
- test_executor: runs tests against the state described by pre_patches and judges whether they genuinely passed.
- vcs: answers version-control questions (history, blame, file evolution) and performs git operations (merge, revert, cherry-pick) whose result comes back as a patch.
- advisor: a senior engineer who reviews the recent transcript when progress has stalled.

Principles:
- Probe the environment before editing. Locate before editing when the target is unclear.
- Always verify a patch with test_executor before declaring success.
- Patches compose: pass the IDs of patches to build on as pre_patches.
- If the same move keeps failing, change approach or consult the advisor.
- Finish with status "succeeded" only when a verified patch exists; name it as final_diff_id. Finish with "failed" when the task cannot be completed, naming the best partial patch if one exists.

Respond by calling exactly one tool: choose_action or finish.`

// historyWindow is how many recent steps the planner sees each cycle.
const defaultHistoryWindow = 12

// Claude is the production planner. It is stateless between cycles; each
// decision is derived entirely from the snapshot.
type Claude struct {
	client        *api.Client
	historyWindow int
}

// NewClaude creates the Claude-backed planner.
func NewClaude(client *api.Client, historyWindow int) *Claude {
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	return &Claude{client: client, historyWindow: historyWindow}
}

// Next asks the model for one decision. A malformed decision is re-prompted
// once with the parse error; a second failure aborts with ErrContract.
func (p *Claude) SelectNext(ctx context.Context, snap taskstate.Snapshot) (Decision, error) {
	prompt := p.buildPrompt(snap)

	name, input, err := p.client.ForcedToolCall(ctx, plannerSystemPrompt, prompt, plannerTools())
	if err != nil {
		return Decision{}, fmt.Errorf("planner call: %w", err)
	}

	decision, perr := parseDecision(name, input, snap)
	if perr == nil {
		return decision, nil
	}

	// One corrective round trip before giving up.
	retryPrompt := fmt.Sprintf("%s\n\nYour previous decision was rejected: %v\nCorrect it and decide again.", prompt, perr)
	name, input, err = p.client.ForcedToolCall(ctx, plannerSystemPrompt, retryPrompt, plannerTools())
	if err != nil {
		return Decision{}, fmt.Errorf("planner retry call: %w", err)
	}
	decision, perr = parseDecision(name, input, snap)
	if perr != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrContract, perr)
	}
	return decision, nil
}

func plannerTools() []anthropic.ToolUnionParam {
	capabilities := make([]string, 0, len(capability.All()))
	for _, n := range capability.All() {
		capabilities = append(capabilities, string(n))
	}
	return []anthropic.ToolUnionParam{
		api.Tool("choose_action", "Invoke one capability as the next step.",
			map[string]api.Property{
				"capability":  {Type: "string", Description: "Which capability to invoke", Enum: capabilities},
				"instruction": {Type: "string", Description: "Natural-language directive for the capability"},
				"pre_patches": {Type: "array", Description: "Diff IDs to apply before the capability runs, in precedence order", Items: "string"},
				"command":     {Type: "string", Description: "Explicit command for test_executor"},
				"locations": {
					Type:        "array",
					Description: "Code spans for the editor: objects with path, start_line, end_line, reason",
					Items:       "object",
				},
			}, "capability"),
		api.Tool("finish", "End the run with a terminal verdict.",
			map[string]api.Property{
				"status":        {Type: "string", Description: "Terminal verdict", Enum: []string{"succeeded", "failed"}},
				"final_diff_id": {Type: "string", Description: "Diff ID to deliver. Required for succeeded; optional best-effort for failed"},
				"reason":        {Type: "string", Description: "Why the run ends with this verdict"},
			}, "status", "reason"),
	}
}

func (p *Claude) buildPrompt(snap taskstate.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", snap.Task.Description)

	b.WriteString("Known environment:\n")
	env := snap.Environment
	wrote := false
	for _, pair := range [][2]string{
		{"build", env.Commands.Build},
		{"test", env.Commands.Test},
		{"run", env.Commands.Run},
		{"lint", env.Commands.Lint},
		{"reduced test example", env.Commands.ReducedTestExample},
	} {
		if pair[1] != "" {
			fmt.Fprintf(&b, "- %s: %s\n", pair[0], pair[1])
			wrote = true
		}
	}
	if env.Git.Branch != "" {
		fmt.Fprintf(&b, "- git: %s @ %s\n", env.Git.Branch, env.Git.Commit)
		wrote = true
	}
	if !wrote {
		b.WriteString("- nothing discovered yet\n")
	}

	b.WriteString("\nPatches produced so far:\n")
	if len(snap.DiffIDs) == 0 {
		b.WriteString("- none\n")
	}
	for _, id := range snap.DiffIDs {
		fmt.Fprintf(&b, "- %s: %s\n", id, snap.DiffNotes[id])
	}

	if len(snap.Locations) > 0 {
		b.WriteString("\nKnown code locations:\n")
		for _, loc := range snap.Locations {
			fmt.Fprintf(&b, "- %s", loc.String())
			if loc.Reason != "" {
				fmt.Fprintf(&b, " (%s)", loc.Reason)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRecent steps:\n")
	tail := snap.HistoryTail(p.historyWindow)
	if tail == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(tail)
	}

	b.WriteString("\nDecide the next step.")
	return b.String()
}

// parseDecision converts a tool call into a validated Decision. The snapshot
// supplies the known diff IDs so dangling references are caught here rather
// than mid-dispatch.
func parseDecision(name string, input json.RawMessage, snap taskstate.Snapshot) (Decision, error) {
	known := make(map[string]bool, len(snap.DiffIDs))
	for _, id := range snap.DiffIDs {
		known[id] = true
	}

	switch name {
	case "choose_action":
		var raw struct {
			Capability  string   `json:"capability"`
			Instruction string   `json:"instruction"`
			PrePatches  []string `json:"pre_patches"`
			Command     string   `json:"command"`
			Locations   []struct {
				Path      string `json:"path"`
				StartLine int    `json:"start_line"`
				EndLine   int    `json:"end_line"`
				Reason    string `json:"reason"`
			} `json:"locations"`
		}
		if err := json.Unmarshal(input, &raw); err != nil {
			return Decision{}, fmt.Errorf("malformed choose_action arguments: %v", err)
		}
		capName, err := capability.ParseName(raw.Capability)
		if err != nil {
			return Decision{}, err
		}
		for _, id := range raw.PrePatches {
			if !known[id] {
				return Decision{}, fmt.Errorf("pre_patches references unknown diff %q", id)
			}
		}
		action := &capability.Action{
			Name:        capName,
			Instruction: raw.Instruction,
			PrePatches:  raw.PrePatches,
			Command:     raw.Command,
		}
		for _, l := range raw.Locations {
			loc := models.Location{Path: l.Path, StartLine: l.StartLine, EndLine: l.EndLine, Reason: l.Reason}
			if loc.Valid() == nil {
				action.Locations = append(action.Locations, loc)
			}
		}
		return Decision{Action: action}, nil

	case "finish":
		var raw struct {
			Status      string `json:"status"`
			FinalDiffID string `json:"final_diff_id"`
			Reason      string `json:"reason"`
		}
		if err := json.Unmarshal(input, &raw); err != nil {
			return Decision{}, fmt.Errorf("malformed finish arguments: %v", err)
		}
		if raw.FinalDiffID != "" && !known[raw.FinalDiffID] {
			return Decision{}, fmt.Errorf("final_diff_id references unknown diff %q", raw.FinalDiffID)
		}
		d := Decision{Termination: &Termination{
			Status:      models.RunStatus(raw.Status),
			FinalDiffID: raw.FinalDiffID,
			Reason:      raw.Reason,
		}}
		if err := d.Valid(); err != nil {
			return Decision{}, err
		}
		return d, nil

	default:
		return Decision{}, fmt.Errorf("unknown decision tool %q", name)
	}
}
