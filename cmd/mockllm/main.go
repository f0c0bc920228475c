// mockllm is a development stand-in for the upstream OpenAI-compatible
// inference server. It serves a canned model list (including a codex
// entry, so tag filtering is visible) and deterministic completions,
// streamed or not.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

var replyWords = []string{"Hello", " from", " the", " mock", " model", "."}

func main() {
	port := flag.Int("port", 8080, "port to listen on (loopback only)")
	model := flag.String("model", "mock-model", "model id to report")
	delay := flag.Duration("delay", 20*time.Millisecond, "delay between stream chunks")
	flag.Parse()

	logger := log.New(os.Stdout, "[mockllm] ", log.LstdFlags)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"id": *model, "object": "model", "owned_by": "mockllm"},
				{"id": "codex-mini", "object": "model", "owned_by": "mockllm"},
			},
		})
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error": "invalid JSON"}`, http.StatusBadRequest)
			return
		}
		if req.Model == "" {
			req.Model = *model
		}

		if req.Stream {
			streamCompletion(w, req.Model, *delay)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": strings.Join(replyWords, ""),
					},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     7,
				"completion_tokens": len(replyWords),
				"total_tokens":      7 + len(replyWords),
			},
		})
	})

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	logger.Printf("mock upstream listening on http://%s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

// streamCompletion writes an SSE stream: a role delta, a couple of
// reasoning-only deltas, the content deltas, a finish chunk with
// usage, then [DONE].
func streamCompletion(w http.ResponseWriter, model string, delay time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming unsupported"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	send := func(chunk map[string]interface{}) {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		time.Sleep(delay)
	}
	delta := func(d map[string]interface{}, finish interface{}) map[string]interface{} {
		return map[string]interface{}{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]interface{}{
				{"index": 0, "delta": d, "finish_reason": finish},
			},
		}
	}

	send(delta(map[string]interface{}{"role": "assistant"}, nil))
	send(delta(map[string]interface{}{"reasoning_content": "thinking about it"}, nil))
	send(delta(map[string]interface{}{"reasoning_content": "still thinking"}, nil))
	for _, word := range replyWords {
		send(delta(map[string]interface{}{"content": word}, nil))
	}

	final := delta(map[string]interface{}{}, "stop")
	final["usage"] = map[string]int{
		"prompt_tokens":     7,
		"completion_tokens": len(replyWords),
	}
	send(final)

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
