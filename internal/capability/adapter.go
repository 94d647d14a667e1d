package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/mender/pkg/models"
)

// Invocation is the read-only context the loop hands an adapter alongside the
// action: everything a capability may consult, nothing it may mutate.
type Invocation struct {
	// Task is the run's immutable task.
	Task models.Task
	// Environment is the best-known environment at dispatch time.
	Environment models.Environment
	// ResolvedPatch is the combined patch of the action's PrePatches,
	// already flattened by the diff store. Empty when no pre-patches.
	ResolvedPatch string
	// Transcript is a rendering of recent history steps, used by the advisor.
	Transcript string
	// KnownLocations are the spans located so far in the run.
	KnownLocations []models.Location
}

// Adapter wraps one external specialist behind a uniform contract. Invoke
// must return exactly one Observation; errors it cannot express as a failed
// observation are returned and converted by the loop.
type Adapter interface {
	// Name returns the capability this adapter serves.
	Name() Name
	// Budget returns the maximum wall-clock duration for one invocation.
	Budget() time.Duration
	// CostWeight returns the cost units one invocation adds to the run's
	// cumulative cost meter.
	CostWeight() float64
	// Validate checks the action's arguments against the adapter's
	// constraints before any work is started.
	Validate(action Action) error
	// Invoke executes the action. The context carries the budget deadline;
	// implementations must honor cancellation promptly.
	Invoke(ctx context.Context, action Action, inv Invocation) (Observation, error)
}

// Registry maps capability names to adapters. It is fixed at construction;
// the loop dispatches through it without knowing concrete types.
type Registry struct {
	adapters map[Name]Adapter
}

// NewRegistry builds a registry from the given adapters. Duplicate names are
// rejected.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[Name]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, exists := r.adapters[a.Name()]; exists {
			return nil, fmt.Errorf("duplicate adapter for capability %s", a.Name())
		}
		r.adapters[a.Name()] = a
	}
	return r, nil
}

// Get returns the adapter for the given name.
func (r *Registry) Get(name Name) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered capability names in dispatch order.
func (r *Registry) Names() []Name {
	var names []Name
	for _, n := range All() {
		if _, ok := r.adapters[n]; ok {
			names = append(names, n)
		}
	}
	return names
}
