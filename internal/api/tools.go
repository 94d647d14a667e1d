package api

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Tool builds a single tool schema. Properties map field name to a
// {type, description} pair; required lists the mandatory fields.
func Tool(name, description string, properties map[string]Property, required ...string) anthropic.ToolUnionParam {
	props := make(map[string]interface{}, len(properties))
	for field, p := range properties {
		entry := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			entry["enum"] = p.Enum
		}
		if p.Items != "" {
			entry["items"] = map[string]interface{}{"type": p.Items}
		}
		props[field] = entry
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		},
	}
}

// Property describes one field of a tool's input schema.
type Property struct {
	Type        string
	Description string
	Enum        []string
	Items       string // element type for arrays
}

// WorkspaceTools returns the filesystem and shell tools available to
// sub-agents that modify the checkout.
func WorkspaceTools() []anthropic.ToolUnionParam {
	return append(InspectionTools(),
		Tool("Write", "Write content to a file. Creates parent directories if needed.",
			map[string]Property{
				"file_path": {Type: "string", Description: "Path to the file to write, relative to the project root"},
				"content":   {Type: "string", Description: "Content to write to the file"},
			}, "file_path", "content"),
		Tool("Edit", "Edit a file by replacing text. The old_string must be unique unless replace_all is true.",
			map[string]Property{
				"file_path":   {Type: "string", Description: "Path to the file to edit"},
				"old_string":  {Type: "string", Description: "The exact text to find and replace"},
				"new_string":  {Type: "string", Description: "The text to replace it with"},
				"replace_all": {Type: "boolean", Description: "If true, replace all occurrences (default: false)"},
			}, "file_path", "old_string", "new_string"),
	)
}

// InspectionTools returns the read-only tools for sub-agents that may
// inspect and run things in the checkout but must not edit files directly.
func InspectionTools() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		Tool("Read", "Read a file from the project. Returns file contents with line numbers.",
			map[string]Property{
				"file_path": {Type: "string", Description: "Path to the file to read, relative to the project root"},
				"offset":    {Type: "integer", Description: "Line number to start reading from (1-indexed, optional)"},
				"limit":     {Type: "integer", Description: "Maximum number of lines to read (optional)"},
			}, "file_path"),
		Tool("Bash", "Execute a shell command in the project root and return the combined output.",
			map[string]Property{
				"command":     {Type: "string", Description: "The bash command to execute"},
				"timeout":     {Type: "integer", Description: "Timeout in milliseconds (optional, default 120000)"},
				"description": {Type: "string", Description: "What this command does"},
			}, "command"),
		Tool("Glob", "Find files matching a glob pattern.",
			map[string]Property{
				"pattern": {Type: "string", Description: "Glob pattern to match (e.g., '*.go')"},
				"path":    {Type: "string", Description: "Directory to search in (optional, defaults to project root)"},
			}, "pattern"),
		Tool("Grep", "Search file contents using regex patterns. Uses ripgrep when available.",
			map[string]Property{
				"pattern": {Type: "string", Description: "Regex pattern to search for"},
				"path":    {Type: "string", Description: "File or directory to search in (optional)"},
				"glob":    {Type: "string", Description: "Glob pattern to filter files (e.g., '*.go')"},
				"context": {Type: "integer", Description: "Number of context lines to show around matches"},
			}, "pattern"),
		Tool("ListDir", "List contents of a directory.",
			map[string]Property{
				"path": {Type: "string", Description: "Directory path to list"},
			}, "path"),
	}
}
