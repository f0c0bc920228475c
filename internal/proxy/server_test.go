package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localforge/ollamabridge/internal/ollama"
	"github.com/localforge/ollamabridge/internal/upstream/openaicompat"
)

// newTestUpstream serves a minimal OpenAI-compatible surface for the
// proxy to talk to.
func newTestUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"id":"mock-model"},{"id":"codex-mini"}]}`)
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"model":%q,"choices":[{"message":{"role":"assistant","content":"hello"}}],`+
				`"usage":{"prompt_tokens":3,"completion_tokens":1}}`, req.Model)
			return
		}

		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		send := func(payload string) {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		send(fmt.Sprintf(`{"model":%q,"choices":[{"delta":{"role":"assistant"}}]}`, req.Model))
		send(fmt.Sprintf(`{"model":%q,"choices":[{"delta":{"reasoning_content":"hmm"}}]}`, req.Model))
		send(fmt.Sprintf(`{"model":%q,"choices":[{"delta":{"content":"Hel"}}]}`, req.Model))
		send(fmt.Sprintf(`{"model":%q,"choices":[{"delta":{"content":"lo"}}]}`, req.Model))
		send("[DONE]")
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func clientFor(t *testing.T, ts *httptest.Server) *openaicompat.Client {
	t.Helper()
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return openaicompat.NewClient("127.0.0.1", port, time.Second)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startServer(t *testing.T, client *openaicompat.Client, maxConns int) *Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	srv := NewServer(freePort(t), client, logger, Options{MaxConns: maxConns})
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		if srv.State() == StateRunning {
			srv.Stop()
		}
	})
	return srv
}

// doRaw sends one raw HTTP request to the proxy and returns the full
// close-delimited response.
func doRaw(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

func postRaw(path, body string) string {
	return fmt.Sprintf("POST %s HTTP/1.1\r\nHost: localhost\r\nContent-Length: %d\r\n\r\n%s",
		path, len(body), body)
}

// splitResponse cuts a raw response into head and body.
func splitResponse(t *testing.T, resp string) (string, string) {
	t.Helper()
	idx := strings.Index(resp, "\r\n\r\n")
	require.GreaterOrEqual(t, idx, 0, "response has no header terminator: %q", resp)
	return resp[:idx], resp[idx+4:]
}

func TestLivenessRoutes(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	for _, path := range []string{"/", "/api", "/api/"} {
		resp := doRaw(t, srv.Addr(), fmt.Sprintf("GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", path))
		head, body := splitResponse(t, resp)
		assert.Contains(t, head, "HTTP/1.1 200 OK")
		assert.Contains(t, head, "Content-Type: text/plain")
		assert.Contains(t, head, "Connection: close")
		assert.Equal(t, "Ollama is running", body)
	}
}

func TestUnknownPath404(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), "GET /api/nope HTTP/1.1\r\nHost: localhost\r\n\r\n")
	head, _ := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 404 Not Found")
}

func TestTagsFiltersCodex(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), "GET /api/tags HTTP/1.1\r\nHost: localhost\r\n\r\n")
	head, body := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 200 OK")

	var tags ollama.TagsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tags))
	require.Len(t, tags.Models, 1)
	assert.Equal(t, "mock-model", tags.Models[0].Name)
	assert.Equal(t, "sha256:mock-model", tags.Models[0].Digest)
}

func TestGenerateNonStreaming(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), postRaw("/api/generate", `{"model":"m","prompt":"hi","stream":false}`))
	head, body := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 200 OK")
	assert.Contains(t, head, "Content-Type: application/json")

	var chunk ollama.GenerateChunk
	require.NoError(t, json.Unmarshal([]byte(body), &chunk))
	assert.Equal(t, "m", chunk.Model)
	assert.Equal(t, "hello", chunk.Response)
	assert.True(t, chunk.Done)
	assert.Equal(t, "stop", chunk.DoneReason)
	assert.Equal(t, 3, chunk.PromptEvalCount)
	assert.Equal(t, 1, chunk.EvalCount)
}

func TestChatNonStreaming(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), postRaw("/api/chat",
		`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":false}`))
	_, body := splitResponse(t, resp)

	var chunk ollama.ChatChunk
	require.NoError(t, json.Unmarshal([]byte(body), &chunk))
	assert.Equal(t, "hello", chunk.Message.Content, "content passes through verbatim")
	assert.Equal(t, "assistant", chunk.Message.Role)
	assert.True(t, chunk.Done)
}

func TestChatStreaming(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), postRaw("/api/chat",
		`{"model":"m","messages":[{"role":"user","content":"hi"}]}`))
	head, body := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 200 OK")
	assert.Contains(t, head, "Content-Type: application/x-ndjson")
	assert.NotContains(t, head, "Content-Length")

	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3, "two content chunks plus the final done chunk")

	var content string
	for _, line := range lines[:2] {
		var c ollama.ChatChunk
		require.NoError(t, json.Unmarshal([]byte(line), &c))
		assert.False(t, c.Done)
		content += c.Message.Content
	}
	assert.Equal(t, "Hello", content)

	var final ollama.ChatChunk
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &final))
	assert.True(t, final.Done)
	assert.Equal(t, "stop", final.DoneReason)
	assert.Empty(t, final.Message.Content)
}

func TestGenerateStreaming(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), postRaw("/api/generate", `{"model":"m","prompt":"hi"}`))
	_, body := splitResponse(t, resp)

	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)

	var final ollama.GenerateChunk
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &final))
	assert.True(t, final.Done)
	assert.Equal(t, "stop", final.DoneReason)
}

func TestBadRequestBody(t *testing.T) {
	srv := startServer(t, clientFor(t, newTestUpstream(t)), 0)

	resp := doRaw(t, srv.Addr(), postRaw("/api/chat", `{not json`))
	head, _ := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 400 Bad Request")
}

func TestUpstreamDown502(t *testing.T) {
	// A client pointed at a port nothing listens on.
	client := openaicompat.NewClient("127.0.0.1", freePort(t), 200*time.Millisecond)
	srv := startServer(t, client, 0)

	resp := doRaw(t, srv.Addr(), postRaw("/api/chat",
		`{"model":"m","messages":[],"stream":false}`))
	head, _ := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 502 Bad Gateway")
}

func TestLifecycle(t *testing.T) {
	client := clientFor(t, newTestUpstream(t))
	logger := log.New(io.Discard, "", 0)
	srv := NewServer(freePort(t), client, logger, Options{})

	assert.Equal(t, StateStopped, srv.State())
	require.NoError(t, srv.Start())
	assert.Equal(t, StateRunning, srv.State())

	// Double start is rejected while running.
	assert.Error(t, srv.Start())

	addr := srv.Addr()
	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())

	// Stopping again is rejected, and the port is free for a restart.
	assert.Error(t, srv.Stop())
	require.NoError(t, srv.Start())
	assert.Equal(t, addr, srv.Addr())
	require.NoError(t, srv.Stop())
}

func TestGateSaturation503(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	srv := startServer(t, clientFor(t, ts), 1)

	// First request occupies the single slot.
	first, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer first.Close()
	_, err = first.Write([]byte(postRaw("/api/chat", `{"model":"m","messages":[],"stream":false}`)))
	require.NoError(t, err)

	// Give the handler time to claim the slot and block on upstream.
	time.Sleep(100 * time.Millisecond)

	resp := doRaw(t, srv.Addr(), postRaw("/api/chat", `{"model":"m","messages":[],"stream":false}`))
	head, _ := splitResponse(t, resp)
	assert.Contains(t, head, "HTTP/1.1 503 Service Unavailable")

	// Unblock the in-flight request so Stop can drain cleanly.
	close(release)
	io.ReadAll(first)
}
