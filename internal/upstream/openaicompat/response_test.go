package openaicompat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionToChat(t *testing.T) {
	body := `{"model":"up-model","choices":[{"message":{"role":"assistant","content":"hello"}}],` +
		`"usage":{"prompt_tokens":3,"completion_tokens":5}}`

	chunk, err := CompletionToChat([]byte(body), "requested")
	require.NoError(t, err)

	assert.Equal(t, "up-model", chunk.Model, "upstream model wins over the requested one")
	assert.Equal(t, "hello", chunk.Message.Content)
	assert.Equal(t, "assistant", chunk.Message.Role)
	assert.True(t, chunk.Done)
	assert.Equal(t, "stop", chunk.DoneReason)
	assert.Equal(t, 3, chunk.PromptEvalCount)
	assert.Equal(t, 5, chunk.EvalCount)
}

func TestCompletionToChatFallbackModel(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":"x"}}]}`
	chunk, err := CompletionToChat([]byte(body), "requested")
	require.NoError(t, err)
	assert.Equal(t, "requested", chunk.Model)
}

func TestCompletionToGenerate(t *testing.T) {
	body := `{"model":"m","choices":[{"message":{"role":"assistant","content":"hello"}}]}`
	chunk, err := CompletionToGenerate([]byte(body), "m")
	require.NoError(t, err)

	assert.Equal(t, "hello", chunk.Response)
	assert.True(t, chunk.Done)
	assert.Equal(t, "stop", chunk.DoneReason)
}

func TestCompletionContractViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not JSON", "nope"},
		{"no choices", `{"model":"m"}`},
		{"empty choices", `{"choices":[]}`},
		{"choice without message", `{"choices":[{"finish_reason":"stop"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompletionToChat([]byte(tt.body), "m")
			assert.Error(t, err)
		})
	}
}

func TestModelsToTags(t *testing.T) {
	body := `{"data":[{"id":"gpt-local"},{"id":"Codex-Mini"},{"id":"other-CODEX-x"},{"id":"llama-local"}]}`
	tags, err := ModelsToTags([]byte(body))
	require.NoError(t, err)

	require.Len(t, tags.Models, 2, "codex models are dropped regardless of case")
	assert.Equal(t, "gpt-local", tags.Models[0].Name)
	assert.Equal(t, "gpt-local", tags.Models[0].Model)
	assert.Equal(t, "sha256:gpt-local", tags.Models[0].Digest)
	assert.Equal(t, int64(0), tags.Models[0].Size)
	assert.Equal(t, "gguf", tags.Models[0].Details.Format)
	assert.Equal(t, "llama-local", tags.Models[1].Name)
}

func TestModelsToTagsEmpty(t *testing.T) {
	tags, err := ModelsToTags([]byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, tags.Models)
	assert.Empty(t, tags.Models)
}

func TestModelsToTagsBadPayload(t *testing.T) {
	_, err := ModelsToTags([]byte("not json"))
	assert.Error(t, err)
}
