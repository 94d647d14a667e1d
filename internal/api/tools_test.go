package api

import (
	"testing"
)

func TestWorkspaceToolsIncludeMutation(t *testing.T) {
	names := map[string]bool{}
	for _, tool := range WorkspaceTools() {
		names[tool.OfTool.Name] = true
	}
	for _, want := range []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep", "ListDir"} {
		if !names[want] {
			t.Errorf("WorkspaceTools() missing %q", want)
		}
	}
}

func TestInspectionToolsExcludeMutation(t *testing.T) {
	names := map[string]bool{}
	for _, tool := range InspectionTools() {
		names[tool.OfTool.Name] = true
	}
	for _, banned := range []string{"Write", "Edit"} {
		if names[banned] {
			t.Errorf("InspectionTools() should not include %q", banned)
		}
	}
	if !names["Read"] || !names["Bash"] {
		t.Error("InspectionTools() missing Read or Bash")
	}
}

func TestToolSchema(t *testing.T) {
	tool := Tool("report", "Report a finding.",
		map[string]Property{
			"kind":  {Type: "string", Description: "finding kind", Enum: []string{"a", "b"}},
			"paths": {Type: "array", Description: "paths", Items: "string"},
		}, "kind")

	if tool.OfTool.Name != "report" {
		t.Errorf("Name = %q, want %q", tool.OfTool.Name, "report")
	}
	if got := tool.OfTool.InputSchema.Required; len(got) != 1 || got[0] != "kind" {
		t.Errorf("Required = %v, want [kind]", got)
	}

	props := tool.OfTool.InputSchema.Properties.(map[string]interface{})
	kind := props["kind"].(map[string]interface{})
	if _, ok := kind["enum"]; !ok {
		t.Error("enum not carried into schema")
	}
	paths := props["paths"].(map[string]interface{})
	if _, ok := paths["items"]; !ok {
		t.Error("items not carried into schema")
	}
}
