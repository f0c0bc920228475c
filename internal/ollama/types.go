package ollama

import (
	"encoding/json"
	"time"
)

// Message is a single chat turn in the vendor schema.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams are the tuning fields the vendor API accepts at the top
// level of chat and generate requests. They may also appear inside the
// nested options map; the top-level values take precedence.
type SamplingParams struct {
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	Seed        *int            `json:"seed,omitempty"`
	Stop        json.RawMessage `json:"stop,omitempty"` // string or array, forwarded as-is
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   *bool                  `json:"stream,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
	SamplingParams
}

// Streaming reports whether the client asked for a streamed response.
// Absent means yes.
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system,omitempty"`
	Prompt  string                 `json:"prompt"`
	Stream  *bool                  `json:"stream,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
	SamplingParams
}

// Streaming reports whether the client asked for a streamed response.
// Absent means yes.
func (r *GenerateRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ChatChunk is one response object on the /api/chat path: a single JSON
// body when stream=false, or one NDJSON line per token batch otherwise.
type ChatChunk struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Message         Message   `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
}

// GenerateChunk is the /api/generate counterpart of ChatChunk.
type GenerateChunk struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Response        string    `json:"response"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
}

// TagsResponse is the body of GET /api/tags.
type TagsResponse struct {
	Models []ModelEntry `json:"models"`
}

// ModelEntry describes one available model in the tags listing.
type ModelEntry struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails carries the metadata block vendor clients expect on each
// tags entry. The upstream listing has none of it, so entries are filled
// with placeholders.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}
