package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/pkg/models"
)

// LocatorAdapter finds the code spans relevant to an instruction.
type LocatorAdapter struct {
	claudeAdapter
}

// NewLocator creates the locator adapter.
func NewLocator(opts ClaudeOptions) *LocatorAdapter {
	return &LocatorAdapter{claudeAdapter{name: Locator, opts: opts}}
}

// Validate checks the action's arguments.
func (l *LocatorAdapter) Validate(action Action) error {
	if strings.TrimSpace(action.Instruction) == "" {
		return fmt.Errorf("locator requires an instruction")
	}
	if action.Command != "" {
		return fmt.Errorf("locator does not take a command")
	}
	return nil
}

// Invoke runs the locator sub-agent and converts its report into a
// locations observation.
func (l *LocatorAdapter) Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error) {
	if err := l.prepareCheckout(inv.ResolvedPatch); err != nil {
		return Failed(Locator, FailureAdapter, "prepare checkout: %v", err), nil
	}

	tools := append(api.InspectionTools(),
		api.Tool("report_locations", "Report every relevant code span. Call exactly once when done.",
			map[string]api.Property{
				"locations": {
					Type:        "array",
					Description: "Objects with fields: path (string), start_line (integer, 1-indexed), end_line (integer, inclusive), content (string, the span's code), reason (string, why it matters)",
					Items:       "object",
				},
				"summary": {Type: "string", Description: "One-line summary of what was found"},
			}, "locations"),
	)

	userPrompt := fmt.Sprintf("Task context: %s\n\nFind code relevant to: %s\n\n%sKnown environment facts:\n%s",
		inv.Task.Description, action.Instruction,
		renderLocations(inv.KnownLocations), renderEnvironment(inv.Environment))

	result, err := l.newLoop(true).Run(ctx, locatorSystemPrompt, userPrompt, tools, "report_locations")
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Failed(Locator, FailureAdapter, "locator agent: %v", err), nil
	}
	if result.FinalTool == "" {
		return Failed(Locator, FailureAdapter, "locator finished without reporting locations"), nil
	}

	var report struct {
		Locations []struct {
			Path      string `json:"path"`
			StartLine int    `json:"start_line"`
			EndLine   int    `json:"end_line"`
			Content   string `json:"content"`
			Reason    string `json:"reason"`
		} `json:"locations"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(result.FinalInput, &report); err != nil {
		return Failed(Locator, FailureAdapter, "unusable locator report: %v", err), nil
	}

	var locations []models.Location
	for _, raw := range report.Locations {
		loc := models.Location{
			Path:      raw.Path,
			StartLine: raw.StartLine,
			EndLine:   raw.EndLine,
			Content:   raw.Content,
			Reason:    raw.Reason,
		}
		if loc.Valid() == nil {
			locations = append(locations, loc)
		}
	}
	if len(locations) == 0 {
		return Failed(Locator, FailureAdapter, "locator reported no usable locations"), nil
	}

	summary := report.Summary
	if summary == "" {
		summary = fmt.Sprintf("located %d relevant spans", len(locations))
	}
	return Observation{
		Action:    Locator,
		Ok:        true,
		Summary:   summarize(summary, 200),
		Locations: locations,
	}, nil
}
