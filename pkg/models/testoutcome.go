package models

// TestOutcome is the structured result of one test-executor invocation.
type TestOutcome struct {
	// Command is the test command that was actually executed.
	Command string `json:"command"`
	// Passed indicates whether the relevant tests passed.
	Passed bool `json:"passed"`
	// Rationale summarizes why the executor judged the tests passed or failed.
	Rationale string `json:"rationale,omitempty"`
	// Output holds selected raw evidence from the test run.
	Output string `json:"output,omitempty"`
	// Doubts records counter-arguments or anomalies the executor noticed.
	Doubts string `json:"doubts,omitempty"`
}
