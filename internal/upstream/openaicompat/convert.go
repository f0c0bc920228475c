// Package openaicompat translates between the vendor-facing Ollama API
// shapes and the OpenAI-compatible chat completions API the upstream
// inference server speaks: request building, response reshaping, and
// SSE-to-NDJSON stream translation.
package openaicompat

import (
	"github.com/localforge/ollamabridge/internal/ollama"
)

// ChatToCompletions converts a vendor chat request into an
// OpenAI-compatible chat completions request body. The result is a map
// rather than a struct so that unknown keys inside the vendor options
// block survive the flattening untouched.
func ChatToCompletions(req *ollama.ChatRequest) map[string]interface{} {
	out := map[string]interface{}{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   req.Streaming(),
	}
	applySampling(out, req.Options, req.SamplingParams)
	return out
}

// GenerateToCompletions converts a vendor generate request into the
// same chat completions shape, building the message list from the
// optional system text plus the prompt.
func GenerateToCompletions(req *ollama.GenerateRequest) map[string]interface{} {
	var messages []ollama.Message
	if req.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: req.Prompt})

	out := map[string]interface{}{
		"model":    req.Model,
		"messages": messages,
		"stream":   req.Streaming(),
	}
	applySampling(out, req.Options, req.SamplingParams)
	return out
}

// applySampling flattens the vendor options map to the top level, then
// copies the known top-level sampling params over it. Order matters:
// the explicit top-level fields always win over an options entry of the
// same name.
func applySampling(out map[string]interface{}, options map[string]interface{}, p ollama.SamplingParams) {
	for k, v := range options {
		out[k] = v
	}
	if p.Temperature != nil {
		out["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		out["top_p"] = *p.TopP
	}
	if p.TopK != nil {
		out["top_k"] = *p.TopK
	}
	if p.Seed != nil {
		out["seed"] = *p.Seed
	}
	if len(p.Stop) > 0 {
		out["stop"] = p.Stop
	}
}
