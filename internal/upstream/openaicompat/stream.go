package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/localforge/ollamabridge/internal/ollama"
)

// Mode selects which vendor chunk shape a stream translator emits.
type Mode int

const (
	// ModeChat emits /api/chat message chunks.
	ModeChat Mode = iota
	// ModeGenerate emits /api/generate response chunks.
	ModeGenerate
)

type streamState int

const (
	awaitingHeaders streamState = iota
	parsingEvents
	closed
)

// StreamTranslator turns the raw bytes of an upstream SSE response
// into vendor NDJSON lines written to w. It is owned by exactly one
// connection handler; nothing in it is safe for concurrent use.
//
// The buffer only grows by appended upstream bytes and only shrinks by
// removing complete, fully parsed events; a partial event stays
// buffered until its terminator arrives.
type StreamTranslator struct {
	w     io.Writer
	mode  Mode
	model string

	state streamState
	buf   string
	role  string

	chunks       int
	promptTokens int
	evalTokens   int
}

// NewStreamTranslator creates a translator writing NDJSON lines for
// the given mode. model is the vendor-requested model name, used when
// upstream events omit their own.
func NewStreamTranslator(w io.Writer, mode Mode, model string) *StreamTranslator {
	return &StreamTranslator{w: w, mode: mode, model: model, role: "assistant"}
}

// Chunks reports how many content lines have been written so far.
func (t *StreamTranslator) Chunks() int { return t.chunks }

// Usage returns prompt and completion token counts captured from the
// stream, when the upstream included usage in a chunk.
func (t *StreamTranslator) Usage() (int, int) { return t.promptTokens, t.evalTokens }

// Feed appends upstream bytes and processes every complete SSE event
// now available. Write errors on the vendor connection abort the
// stream; malformed events do not.
func (t *StreamTranslator) Feed(p []byte) error {
	if t.state == closed {
		return fmt.Errorf("stream translator is closed")
	}
	// Normalize over the whole buffer, not just the new bytes: a \r\n
	// pair can arrive split across two reads.
	t.buf = strings.ReplaceAll(t.buf+string(p), "\r\n", "\n")

	if t.state == awaitingHeaders {
		idx := strings.Index(t.buf, "\n\n")
		if idx < 0 {
			return nil
		}
		t.buf = t.buf[idx+2:]
		t.state = parsingEvents
	}

	for {
		idx := strings.Index(t.buf, "\n\n")
		if idx < 0 {
			return nil
		}
		event := t.buf[:idx]
		t.buf = t.buf[idx+2:]
		if err := t.processEvent(event); err != nil {
			return err
		}
	}
}

// processEvent scans one SSE frame for data: lines and emits a vendor
// chunk for each content-bearing delta.
func (t *StreamTranslator) processEvent(event string) error {
	for _, line := range strings.Split(event, "\n") {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			// Stream completion is signalled by the upstream close,
			// not by the terminator event.
			continue
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		if chunk.Usage != nil {
			t.promptTokens = chunk.Usage.PromptTokens
			t.evalTokens = chunk.Usage.CompletionTokens
		}

		delta := chunk.Choices[0].Delta
		if delta.Role != "" {
			t.role = delta.Role
		}
		if delta.Content == "" {
			// Reasoning-only deltas are never surfaced to the vendor
			// client; role-only deltas carry nothing to emit either.
			continue
		}
		if chunk.Model != "" {
			t.model = chunk.Model
		}
		if err := t.writeLine(delta.Content, false); err != nil {
			return err
		}
		t.chunks++
	}
	return nil
}

// Finish writes the single final done chunk and closes the translator.
// It is called when the upstream connection ends, whether or not a
// [DONE] terminator was ever seen.
func (t *StreamTranslator) Finish() error {
	if t.state == closed {
		return nil
	}
	t.state = closed
	return t.writeLine("", true)
}

func (t *StreamTranslator) writeLine(content string, done bool) error {
	var obj interface{}
	switch t.mode {
	case ModeChat:
		c := ollama.ChatChunk{
			Model:     t.model,
			CreatedAt: time.Now().UTC(),
			Message:   ollama.Message{Role: t.role, Content: content},
			Done:      done,
		}
		if done {
			c.Message.Role = "assistant"
			c.DoneReason = "stop"
		}
		obj = c
	case ModeGenerate:
		c := ollama.GenerateChunk{
			Model:     t.model,
			CreatedAt: time.Now().UTC(),
			Response:  content,
			Done:      done,
		}
		if done {
			c.DoneReason = "stop"
		}
		obj = c
	}

	line, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal stream chunk: %w", err)
	}
	line = append(line, '\n')
	if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("failed to write stream chunk: %w", err)
	}
	return nil
}
