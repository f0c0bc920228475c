package openaicompat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/localforge/ollamabridge/internal/ollama"
)

// ChatCompletionResponse is the upstream non-streaming response body.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message *struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// StreamChunk is one upstream SSE data payload.
type StreamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta *struct {
			Role             string `json:"role,omitempty"`
			Content          string `json:"content,omitempty"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// parseCompletion decodes and validates an upstream completion body.
// Anything without choices[0].message is a contract violation.
func parseCompletion(body []byte) (*ChatCompletionResponse, error) {
	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse upstream completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, fmt.Errorf("upstream completion has no choices[0].message")
	}
	return &resp, nil
}

// CompletionToChat reshapes an upstream completion body into the
// vendor /api/chat response object. fallbackModel is used when the
// upstream omits its own model field.
func CompletionToChat(body []byte, fallbackModel string) (*ollama.ChatChunk, error) {
	resp, err := parseCompletion(body)
	if err != nil {
		return nil, err
	}

	msg := resp.Choices[0].Message
	role := msg.Role
	if role == "" {
		role = "assistant"
	}
	chunk := &ollama.ChatChunk{
		Model:      pickModel(resp.Model, fallbackModel),
		CreatedAt:  time.Now().UTC(),
		Message:    ollama.Message{Role: role, Content: msg.Content},
		Done:       true,
		DoneReason: "stop",
	}
	if resp.Usage != nil {
		chunk.PromptEvalCount = resp.Usage.PromptTokens
		chunk.EvalCount = resp.Usage.CompletionTokens
	}
	return chunk, nil
}

// CompletionToGenerate is the /api/generate counterpart of
// CompletionToChat.
func CompletionToGenerate(body []byte, fallbackModel string) (*ollama.GenerateChunk, error) {
	resp, err := parseCompletion(body)
	if err != nil {
		return nil, err
	}

	chunk := &ollama.GenerateChunk{
		Model:      pickModel(resp.Model, fallbackModel),
		CreatedAt:  time.Now().UTC(),
		Response:   resp.Choices[0].Message.Content,
		Done:       true,
		DoneReason: "stop",
	}
	if resp.Usage != nil {
		chunk.PromptEvalCount = resp.Usage.PromptTokens
		chunk.EvalCount = resp.Usage.CompletionTokens
	}
	return chunk, nil
}

func pickModel(upstream, requested string) string {
	if upstream != "" {
		return upstream
	}
	return requested
}

// modelListResponse is the upstream GET /v1/models body.
type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ModelsToTags converts the upstream model listing into the vendor
// /api/tags shape. Models whose id contains "codex" are dropped: the
// proxy fronts chat clients only. The upstream listing carries no
// metadata, so size and details are placeholders.
func ModelsToTags(body []byte) (*ollama.TagsResponse, error) {
	var list modelListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse upstream model list: %w", err)
	}

	now := time.Now().UTC()
	tags := &ollama.TagsResponse{Models: []ollama.ModelEntry{}}
	for _, m := range list.Data {
		if strings.Contains(strings.ToLower(m.ID), "codex") {
			continue
		}
		tags.Models = append(tags.Models, ollama.ModelEntry{
			Name:       m.ID,
			Model:      m.ID,
			ModifiedAt: now,
			Size:       0,
			Digest:     "sha256:" + m.ID,
			Details: ollama.ModelDetails{
				Format:            "gguf",
				Family:            "unknown",
				Families:          []string{},
				ParameterSize:     "unknown",
				QuantizationLevel: "unknown",
			},
		})
	}
	return tags, nil
}
