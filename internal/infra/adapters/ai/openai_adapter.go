package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-studio-backend/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.CompletionAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.CompletionAdapter using the Chat
// Completions API. Any OpenAI-compatible gateway works via the base URL.
type OpenAIAdapter struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	model  string
	client *http.Client
}

func NewOpenAIAdapter(apiKey, base, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.model}, nil
}

type wireTool struct {
	Type     string           `json:"type"`
	Function adapter.ToolSpec `json:"function"`
}

type chatRequest struct {
	Model      string            `json:"model"`
	Messages   []adapter.Message `json:"messages"`
	Tools      []wireTool        `json:"tools,omitempty"`
	ToolChoice string            `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message adapter.Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	c, err := o.ChatWithTools(ctx, model, messages, nil)
	if err != nil {
		return "", err
	}
	return c.Content, nil
}

func (o *OpenAIAdapter) ChatWithTools(ctx context.Context, model string, messages []adapter.Message, tools []adapter.ToolSpec) (*adapter.Completion, error) {
	if model == "" {
		model = o.model
	}

	reqBody := chatRequest{Model: model, Messages: messages}
	if len(tools) > 0 {
		reqBody.ToolChoice = "auto"
		for _, t := range tools {
			reqBody.Tools = append(reqBody.Tools, wireTool{Type: "function", Function: t})
		}
	}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Choices) == 0 {
		return nil, errors.New("no choices in completion response")
	}

	msg := payload.Choices[0].Message
	out := &adapter.Completion{
		Content: msg.Content,
		Usage: adapter.Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}
	// The graph acts on at most one tool call per iteration.
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		out.ToolCall = &tc
	}
	return out, nil
}
