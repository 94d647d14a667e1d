package models

// Commands holds the most relevant commands discovered for a project.
// All fields are optional; an empty string means "not yet known".
type Commands struct {
	// Build builds the project.
	Build string `json:"build,omitempty"`
	// Test runs the full project test suite.
	Test string `json:"test,omitempty"`
	// Run runs the project.
	Run string `json:"run,omitempty"`
	// Lint runs the project's linter.
	Lint string `json:"lint,omitempty"`
	// ReducibleTestScope indicates the test suite can be narrowed to a subset.
	ReducibleTestScope bool `json:"reducible_test_scope,omitempty"`
	// ReducedTestExample is an example command running a reduced test scope.
	ReducedTestExample string `json:"reduced_test_example,omitempty"`
	// SystemPackageManager names the system-level package manager, if usable.
	SystemPackageManager string `json:"system_package_manager,omitempty"`
	// ProjectPackageManager names the project-level package manager, if usable.
	ProjectPackageManager string `json:"project_package_manager,omitempty"`
}

// GitStatus records the version-control position of the checkout.
type GitStatus struct {
	// Commit is the active commit hash.
	Commit string `json:"commit,omitempty"`
	// Branch is the active branch name.
	Branch string `json:"branch,omitempty"`
	// Dirty indicates uncommitted changes are present.
	Dirty bool `json:"dirty,omitempty"`
}

// Environment is the best-known set of facts about the codebase under work.
// Facts accumulate over the run: Merge only overwrites a field when the
// incoming environment explicitly sets it, so a confirmed fact never regresses
// without new evidence.
type Environment struct {
	// ProjectRoot is the root path of the codebase.
	ProjectRoot string `json:"project_root,omitempty"`
	// Packages lists notable installed packages or dependencies.
	Packages []string `json:"packages,omitempty"`
	// Commands holds discovered build/test/run/lint commands.
	Commands Commands `json:"commands"`
	// Git records the version-control position.
	Git GitStatus `json:"git"`
}

// Merge folds facts from other into e, additively. Only fields other
// explicitly sets are taken; zero values in other never erase known facts.
func (e *Environment) Merge(other *Environment) {
	if other == nil {
		return
	}
	if other.ProjectRoot != "" {
		e.ProjectRoot = other.ProjectRoot
	}
	if len(other.Packages) > 0 {
		e.Packages = mergeStrings(e.Packages, other.Packages)
	}
	e.Commands.merge(other.Commands)
	if other.Git.Commit != "" {
		e.Git.Commit = other.Git.Commit
	}
	if other.Git.Branch != "" {
		e.Git.Branch = other.Git.Branch
	}
	if other.Git.Commit != "" || other.Git.Branch != "" {
		e.Git.Dirty = other.Git.Dirty
	}
}

func (c *Commands) merge(other Commands) {
	if other.Build != "" {
		c.Build = other.Build
	}
	if other.Test != "" {
		c.Test = other.Test
	}
	if other.Run != "" {
		c.Run = other.Run
	}
	if other.Lint != "" {
		c.Lint = other.Lint
	}
	if other.ReducibleTestScope {
		c.ReducibleTestScope = true
	}
	if other.ReducedTestExample != "" {
		c.ReducedTestExample = other.ReducedTestExample
	}
	if other.SystemPackageManager != "" {
		c.SystemPackageManager = other.SystemPackageManager
	}
	if other.ProjectPackageManager != "" {
		c.ProjectPackageManager = other.ProjectPackageManager
	}
}

// Clone returns a deep copy of the environment.
func (e *Environment) Clone() *Environment {
	if e == nil {
		return nil
	}
	out := *e
	out.Packages = append([]string(nil), e.Packages...)
	return &out
}

func mergeStrings(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}
