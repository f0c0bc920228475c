package proxy

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/localforge/ollamabridge/internal/ollama"
	"github.com/localforge/ollamabridge/internal/rawhttp"
	"github.com/localforge/ollamabridge/internal/upstream/openaicompat"
)

const statusBody = "Ollama is running"

// outcome is what one handled connection reports back for logging,
// metrics and the request store.
type outcome struct {
	endpoint     string
	model        string
	stream       bool
	status       int
	chunks       int
	promptTokens int
	evalTokens   int
	upstreamErr  string
}

// handleConn runs one full pipeline pass for a single client
// connection: read, route, translate, forward, translate back, write.
func (s *Server) handleConn(conn net.Conn) *outcome {
	out := &outcome{endpoint: "unknown", status: 200}

	req, err := rawhttp.ReadRequest(conn)
	if err != nil {
		if err == rawhttp.ErrEmptyRequest {
			// Port probe; nothing to answer.
			out.status = 0
			return out
		}
		s.fail(conn, out, badRequest("failed to read request", err))
		return out
	}

	r := match(req.Method, req.Path)
	out.endpoint = r.label()

	switch r {
	case routeStatus:
		if err := rawhttp.WriteResponse(conn, 200, "text/plain", []byte(statusBody)); err != nil {
			s.logger.Printf("failed to write status response: %v", err)
		}
	case routeTags:
		s.handleTags(conn, out)
	case routeChat:
		s.handleChat(conn, req, out)
	case routeGenerate:
		s.handleGenerate(conn, req, out)
	default:
		s.fail(conn, out, notFound(req.Method, req.Path))
	}
	return out
}

// handleTags forwards the upstream model listing as /api/tags.
func (s *Server) handleTags(conn net.Conn, out *outcome) {
	body, perr := s.fetchUpstream("GET", openaicompat.ModelsPath, nil)
	if perr != nil {
		s.fail(conn, out, perr)
		return
	}

	tags, err := openaicompat.ModelsToTags(body)
	if err != nil {
		s.fail(conn, out, upstreamError("unusable upstream model list", err))
		return
	}
	s.writeJSON(conn, out, tags)
}

// handleChat runs the /api/chat translation pipeline.
func (s *Server) handleChat(conn net.Conn, req *rawhttp.Request, out *outcome) {
	var chatReq ollama.ChatRequest
	if err := json.Unmarshal(req.Body, &chatReq); err != nil {
		s.fail(conn, out, badRequest("invalid chat request body", err))
		return
	}
	out.model = chatReq.Model
	out.stream = chatReq.Streaming()

	payload := openaicompat.ChatToCompletions(&chatReq)
	if chatReq.Streaming() {
		s.proxyStream(conn, out, payload, openaicompat.ModeChat, chatReq.Model)
		return
	}

	body, perr := s.forwardCompletion(payload)
	if perr != nil {
		s.fail(conn, out, perr)
		return
	}
	chunk, err := openaicompat.CompletionToChat(body, chatReq.Model)
	if err != nil {
		s.fail(conn, out, upstreamError("unusable upstream completion", err))
		return
	}
	out.promptTokens = chunk.PromptEvalCount
	out.evalTokens = chunk.EvalCount
	s.writeJSON(conn, out, chunk)
}

// handleGenerate runs the /api/generate translation pipeline.
func (s *Server) handleGenerate(conn net.Conn, req *rawhttp.Request, out *outcome) {
	var genReq ollama.GenerateRequest
	if err := json.Unmarshal(req.Body, &genReq); err != nil {
		s.fail(conn, out, badRequest("invalid generate request body", err))
		return
	}
	out.model = genReq.Model
	out.stream = genReq.Streaming()

	payload := openaicompat.GenerateToCompletions(&genReq)
	if genReq.Streaming() {
		s.proxyStream(conn, out, payload, openaicompat.ModeGenerate, genReq.Model)
		return
	}

	body, perr := s.forwardCompletion(payload)
	if perr != nil {
		s.fail(conn, out, perr)
		return
	}
	chunk, err := openaicompat.CompletionToGenerate(body, genReq.Model)
	if err != nil {
		s.fail(conn, out, upstreamError("unusable upstream completion", err))
		return
	}
	out.promptTokens = chunk.PromptEvalCount
	out.evalTokens = chunk.EvalCount
	s.writeJSON(conn, out, chunk)
}

// forwardCompletion sends a translated completions request upstream
// and returns the de-chunked response body.
func (s *Server) forwardCompletion(payload map[string]interface{}) ([]byte, *Error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, translationError("failed to serialize upstream request", err)
	}
	return s.fetchUpstream("POST", openaicompat.CompletionsPath, body)
}

// fetchUpstream performs one full-buffered upstream round trip.
func (s *Server) fetchUpstream(method, path string, body []byte) ([]byte, *Error) {
	uc, err := s.client.Open()
	if err != nil {
		return nil, upstreamError("upstream unreachable", err)
	}
	defer uc.Close()

	if err := uc.WriteRequest(method, path, body); err != nil {
		return nil, upstreamError("failed to send upstream request", err)
	}
	raw, err := uc.ReadAll()
	if err != nil {
		return nil, upstreamError("failed to read upstream response", err)
	}
	resp, err := rawhttp.ParseResponse(raw)
	if err != nil {
		return nil, upstreamError("malformed upstream response", err)
	}
	if resp.StatusCode != 200 {
		return nil, upstreamError(fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil)
	}
	return resp.Body, nil
}

// proxyStream forwards a streaming completion, translating the SSE
// reply into NDJSON lines. Once the 200 head is committed, upstream
// trouble can no longer change the status: the stream just ends with
// the final done chunk.
func (s *Server) proxyStream(conn net.Conn, out *outcome, payload map[string]interface{}, mode openaicompat.Mode, model string) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.fail(conn, out, translationError("failed to serialize upstream request", err))
		return
	}

	uc, err := s.client.Open()
	if err != nil {
		s.fail(conn, out, upstreamError("upstream unreachable", err))
		return
	}
	defer uc.Close()

	if err := uc.WriteRequest("POST", openaicompat.CompletionsPath, body); err != nil {
		s.fail(conn, out, upstreamError("failed to send upstream request", err))
		return
	}

	if err := rawhttp.WriteStreamHead(conn, "application/x-ndjson"); err != nil {
		s.logger.Printf("failed to start stream response: %v", err)
		out.status = 0
		return
	}

	tr := openaicompat.NewStreamTranslator(conn, mode, model)
	if err := uc.Consume(tr.Feed); err != nil {
		// Mid-stream upstream loss is a normal end of stream; a write
		// failure means the client went away.
		out.upstreamErr = err.Error()
		s.logger.Printf("stream ended early: %v", err)
	}
	if err := tr.Finish(); err != nil {
		s.logger.Printf("failed to write final stream chunk: %v", err)
	}
	out.chunks = tr.Chunks()
	out.promptTokens, out.evalTokens = tr.Usage()
	if s.metrics != nil {
		s.metrics.AddStreamChunks(tr.Chunks())
	}
}

func (s *Server) writeJSON(conn net.Conn, out *outcome, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.fail(conn, out, translationError("failed to serialize response", err))
		return
	}
	if err := rawhttp.WriteResponse(conn, 200, "application/json", body); err != nil {
		s.logger.Printf("failed to write response: %v", err)
	}
}

// fail converts a classified error into the client-facing HTTP error
// response. Nothing here panics the connection or the listener.
func (s *Server) fail(conn net.Conn, out *outcome, perr *Error) {
	out.status = perr.Kind.Status()
	if perr.Kind == KindUpstream {
		out.upstreamErr = perr.Error()
		if s.metrics != nil {
			s.metrics.UpstreamError(out.endpoint)
		}
	}
	s.logger.Printf("%s request failed (%d): %v", out.endpoint, out.status, perr)

	body, err := json.Marshal(map[string]string{"error": perr.Message})
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	if err := rawhttp.WriteResponse(conn, out.status, "application/json", body); err != nil {
		s.logger.Printf("failed to write error response: %v", err)
	}
}
