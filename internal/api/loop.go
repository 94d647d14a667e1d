package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// AgentLoop manages the API call and tool execution cycle for one sub-agent.
type AgentLoop struct {
	client        *Client
	executor      *ToolExecutor
	onStream      func(StreamEvent)
	maxIterations int
}

// StreamEvent represents an event during agent execution for streaming to UI.
type StreamEvent struct {
	Type    string // "text", "tool_use", "tool_result", "done", "error"
	Content string
	Tool    string
	Input   json.RawMessage
}

// LoopResult contains the results of an agent loop execution.
type LoopResult struct {
	// Output is the accumulated assistant text.
	Output string
	// FinalTool and FinalInput are set when the loop ended because the agent
	// called one of the designated final tools.
	FinalTool  string
	FinalInput json.RawMessage

	TokensIn   int64
	TokensOut  int64
	ToolCalls  int
	Iterations int
}

// AgentLoopConfig contains configuration for the agent loop.
type AgentLoopConfig struct {
	Client *Client
	// WorkDir is the checkout the agent's tools operate in.
	WorkDir string
	// ReadOnly blocks the Write and Edit tools.
	ReadOnly bool
	// MaxIterations caps API calls before the loop gives up (0 = default).
	MaxIterations int
}

// NewAgentLoop creates a new agent loop with the given configuration.
func NewAgentLoop(cfg AgentLoopConfig) *AgentLoop {
	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = 50
	}
	return &AgentLoop{
		client:        cfg.Client,
		executor:      NewToolExecutor(cfg.WorkDir, cfg.ReadOnly),
		maxIterations: maxIter,
	}
}

// SetStreamHandler sets a callback for streaming events during execution.
func (l *AgentLoop) SetStreamHandler(fn func(StreamEvent)) {
	l.onStream = fn
}

func (l *AgentLoop) emit(event StreamEvent) {
	if l.onStream != nil {
		l.onStream(event)
	}
}

// Run executes the agent loop. The agent may call any of the given tools;
// calls to tools listed in finalTools are not executed, they terminate the
// loop and their input is returned in the result. With no finalTools the loop
// runs until the model ends its turn.
func (l *AgentLoop) Run(ctx context.Context, systemPrompt, userPrompt string, tools []anthropic.ToolUnionParam, finalTools ...string) (*LoopResult, error) {
	result := &LoopResult{}

	final := make(map[string]bool, len(finalTools))
	for _, name := range finalTools {
		final[name] = true
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	for result.Iterations < l.maxIterations {
		result.Iterations++

		resp, err := l.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
			Model:     l.client.Model(),
			MaxTokens: 8192,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			l.emit(StreamEvent{Type: "error", Content: err.Error()})
			return result, fmt.Errorf("API call failed: %w", err)
		}

		result.TokensIn += resp.Usage.InputTokens
		result.TokensOut += resp.Usage.OutputTokens
		l.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var textOutput string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				textOutput += variant.Text
				l.emit(StreamEvent{Type: "text", Content: variant.Text})
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				result.ToolCalls++
				l.emit(StreamEvent{Type: "tool_use", Tool: variant.Name, Input: variant.Input})

				if final[variant.Name] {
					result.Output += textOutput
					result.FinalTool = variant.Name
					result.FinalInput = variant.Input
					l.emit(StreamEvent{Type: "done"})
					return result, nil
				}

				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				toolResult := l.executor.Execute(ctx, variant.Name, variant.Input)
				l.emit(StreamEvent{
					Type:    "tool_result",
					Tool:    variant.Name,
					Content: truncateForDisplay(toolResult.Content),
				})
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, toolResult.Content, toolResult.IsError))
			}
		}
		result.Output += textOutput

		if resp.StopReason == anthropic.StopReasonEndTurn {
			l.emit(StreamEvent{Type: "done"})
			return result, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return result, fmt.Errorf("max iterations (%d) reached", l.maxIterations)
}

// SimpleCall makes a single API call without tool execution.
func (l *AgentLoop) SimpleCall(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := l.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     l.client.Model(),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", err
	}

	l.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result += variant.Text
		}
	}
	return result, nil
}

// ForcedToolCall makes a single API call in which the model must answer by
// calling one of the given tools. Returns the chosen tool's name and input.
func (c *Client) ForcedToolCall(ctx context.Context, systemPrompt, userPrompt string, tools []anthropic.ToolUnionParam) (string, json.RawMessage, error) {
	resp, err := c.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.Model(),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Tools: tools,
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("API call failed: %w", err)
	}

	c.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			return variant.Name, variant.Input, nil
		}
	}
	return "", nil, fmt.Errorf("model answered without calling a tool")
}

func truncateForDisplay(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
