package models

import "fmt"

// Location identifies a span of code relevant to the task, as reported by the
// locator capability.
type Location struct {
	// Path is the file path relative to the project root.
	Path string `json:"path"`
	// StartLine is the first line of the span (1-indexed).
	StartLine int `json:"start_line"`
	// EndLine is the last line of the span, inclusive.
	EndLine int `json:"end_line"`
	// Content is the code at the span when it was located.
	Content string `json:"content,omitempty"`
	// Reason explains why this span is relevant to the task.
	Reason string `json:"reason,omitempty"`
}

// Valid returns an error if the location is structurally malformed.
func (l Location) Valid() error {
	if l.Path == "" {
		return fmt.Errorf("location has empty path")
	}
	if l.StartLine < 1 {
		return fmt.Errorf("location %s: start line %d out of range", l.Path, l.StartLine)
	}
	if l.EndLine < l.StartLine {
		return fmt.Errorf("location %s: end line %d before start line %d", l.Path, l.EndLine, l.StartLine)
	}
	return nil
}

// String returns a compact path:start-end representation.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d-%d", l.Path, l.StartLine, l.EndLine)
}
