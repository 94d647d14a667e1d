package capability

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/mender/internal/api"
	"github.com/ShayCichocki/mender/internal/workspace"
	"github.com/ShayCichocki/mender/pkg/models"
)

const (
	defaultBudget     = 5 * time.Minute
	defaultCostWeight = 1.0
)

// ClaudeOptions configures one Claude-backed adapter.
type ClaudeOptions struct {
	Client    *api.Client
	Workspace *workspace.Workspace
	// Budget overrides the default per-invocation wall-clock budget.
	Budget time.Duration
	// CostWeight overrides the default cost units per invocation.
	CostWeight float64
	// MaxIterations caps the sub-agent's API calls per invocation.
	MaxIterations int
	// Stream receives sub-agent events for live display.
	Stream func(api.StreamEvent)
}

// claudeAdapter carries the wiring every Claude-backed adapter shares.
type claudeAdapter struct {
	name Name
	opts ClaudeOptions
}

func (c *claudeAdapter) Name() Name {
	return c.name
}

func (c *claudeAdapter) Budget() time.Duration {
	if c.opts.Budget > 0 {
		return c.opts.Budget
	}
	return defaultBudget
}

func (c *claudeAdapter) CostWeight() float64 {
	if c.opts.CostWeight > 0 {
		return c.opts.CostWeight
	}
	return defaultCostWeight
}

// newLoop builds an agent loop rooted at the checkout.
func (c *claudeAdapter) newLoop(readOnly bool) *api.AgentLoop {
	loop := api.NewAgentLoop(api.AgentLoopConfig{
		Client:        c.opts.Client,
		WorkDir:       c.opts.Workspace.Root(),
		ReadOnly:      readOnly,
		MaxIterations: c.opts.MaxIterations,
	})
	if c.opts.Stream != nil {
		loop.SetStreamHandler(c.opts.Stream)
	}
	return loop
}

// prepareCheckout restores the baseline and stages the resolved parent patch
// so the sub-agent sees exactly the state the action's pre-patches describe.
func (c *claudeAdapter) prepareCheckout(resolvedPatch string) error {
	if err := c.opts.Workspace.ResetToBaseline(); err != nil {
		return err
	}
	if err := c.opts.Workspace.StagePatch(resolvedPatch); err != nil {
		return fmt.Errorf("stage parent patches: %w", err)
	}
	return nil
}

// renderEnvironment formats known environment facts for a sub-agent prompt.
func renderEnvironment(env models.Environment) string {
	var b strings.Builder
	if env.Commands.Build != "" {
		fmt.Fprintf(&b, "Build: %s\n", env.Commands.Build)
	}
	if env.Commands.Test != "" {
		fmt.Fprintf(&b, "Test: %s\n", env.Commands.Test)
	}
	if env.Commands.Run != "" {
		fmt.Fprintf(&b, "Run: %s\n", env.Commands.Run)
	}
	if env.Commands.Lint != "" {
		fmt.Fprintf(&b, "Lint: %s\n", env.Commands.Lint)
	}
	if env.Commands.ReducedTestExample != "" {
		fmt.Fprintf(&b, "Reduced test example: %s\n", env.Commands.ReducedTestExample)
	}
	if len(env.Packages) > 0 {
		fmt.Fprintf(&b, "Known packages: %s\n", strings.Join(env.Packages, ", "))
	}
	if env.Git.Branch != "" {
		fmt.Fprintf(&b, "Git: branch %s at %s\n", env.Git.Branch, env.Git.Commit)
	}
	if b.Len() == 0 {
		return "No environment facts discovered yet.\n"
	}
	return b.String()
}

// renderLocations formats known code spans for a sub-agent prompt.
func renderLocations(locations []models.Location) string {
	if len(locations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant code locations:\n")
	for _, loc := range locations {
		fmt.Fprintf(&b, "- %s", loc.String())
		if loc.Reason != "" {
			fmt.Fprintf(&b, " (%s)", loc.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// summarize trims free text to a one-line summary.
func summarize(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}
