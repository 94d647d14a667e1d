package capability

import (
	"context"
	"fmt"
	"strings"
)

// AdvisorAdapter diagnoses a stalled run. It works from the transcript alone
// and never touches the checkout, so it is cheap to invoke when the loop
// detects repetition.
type AdvisorAdapter struct {
	claudeAdapter
}

// NewAdvisor creates the advisor adapter.
func NewAdvisor(opts ClaudeOptions) *AdvisorAdapter {
	return &AdvisorAdapter{claudeAdapter{name: Advisor, opts: opts}}
}

// Validate checks the action's arguments. The instruction is optional; the
// transcript is the advisor's real input.
func (a *AdvisorAdapter) Validate(action Action) error {
	if action.Command != "" {
		return fmt.Errorf("advisor does not take a command")
	}
	if len(action.PrePatches) > 0 {
		return fmt.Errorf("advisor does not take pre-patches")
	}
	return nil
}

// Invoke asks for a diagnosis of the recent transcript.
func (a *AdvisorAdapter) Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Task: %s\n\n", inv.Task.Description)
	if action.Instruction != "" {
		fmt.Fprintf(&prompt, "Specific concern: %s\n\n", action.Instruction)
	}
	prompt.WriteString("Recent transcript:\n")
	if inv.Transcript == "" {
		prompt.WriteString("(no steps recorded yet)\n")
	} else {
		prompt.WriteString(inv.Transcript)
	}

	answer, err := a.newLoop(true).SimpleCall(ctx, advisorSystemPrompt, prompt.String())
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Failed(Advisor, FailureAdapter, "advisor: %v", err), nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Failed(Advisor, FailureAdapter, "advisor produced no diagnosis"), nil
	}

	return Observation{
		Action:  Advisor,
		Ok:      true,
		Summary: summarize(answer, 200),
		Answer:  answer,
	}, nil
}
