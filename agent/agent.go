// Package agent runs a tool-calling language model over MCP tool servers.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
)

// Version is reported to tool servers during the handshake.
var Version = "dev"

// ErrStepLimit is returned when the model keeps calling tools past MaxSteps.
var ErrStepLimit = errors.New("agent step limit reached")

const systemPrompt = `You are an assistant that completes tasks by calling the tools available to you.
Tool names have the form <server>__<tool>. When the user names a server or tool, use that one.
When the task is done, reply with the final result as plain text and stop calling tools.`

// ChatCompleter is the chat completion call the agent depends on.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Toolbox lists and invokes tools; *Pool implements it.
type Toolbox interface {
	Tools(ctx context.Context) ([]Tool, error)
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Agent executes one natural-language instruction, letting the model call
// tools for at most MaxSteps model turns.
type Agent struct {
	chat        ChatCompleter
	tools       Toolbox
	model       string
	temperature float64
	maxSteps    int
	logger      *log.Logger
}

// Run sends instruction to the model and loops over its tool calls until it
// answers without calling a tool. The final answer text is returned.
func (a *Agent) Run(ctx context.Context, instruction string) (string, error) {
	tools, err := a.tools.Tools(ctx)
	if err != nil {
		return "", err
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Temperature: openai.Float(a.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(instruction),
		},
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}

	for step := 1; step <= a.maxSteps; step++ {
		start := time.Now()
		resp, err := a.chat.CreateChatCompletion(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("chat completion: empty choices")
		}
		msg := resp.Choices[0].Message
		a.logger.Debug("model turn", "step", step, "tool_calls", len(msg.ToolCalls), "elapsed", time.Since(start))
		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}

		params.Messages = append(params.Messages, assistantMessage(msg))
		for _, call := range msg.ToolCalls {
			out := a.callTool(ctx, call)
			params.Messages = append(params.Messages, openai.ToolMessage(out, call.ID))
		}
	}
	return "", fmt.Errorf("%w (%d)", ErrStepLimit, a.maxSteps)
}

// callTool runs one requested tool. Failures are reported back to the model
// as the tool result so it can correct itself.
func (a *Agent) callTool(ctx context.Context, call openai.ChatCompletionMessageToolCall) string {
	name := call.Function.Name
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			a.logger.Warn("bad tool arguments", "tool", name, "err", err)
			return fmt.Sprintf("error: arguments are not a JSON object: %v", err)
		}
	}
	start := time.Now()
	out, err := a.tools.Call(ctx, name, args)
	if err != nil {
		a.logger.Warn("tool call failed", "tool", name, "err", err, "elapsed", time.Since(start))
		return "error: " + err.Error()
	}
	a.logger.Info("tool call", "tool", name, "bytes", len(out), "elapsed", time.Since(start))
	if out == "" {
		return "(no content returned)"
	}
	return out
}

func assistantMessage(msg openai.ChatCompletionMessage) openai.ChatCompletionMessageParamUnion {
	asst := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		asst.Content.OfString = openai.String(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}
