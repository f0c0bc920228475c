// Package proxy implements the vendor-facing side of the bridge: a
// loopback-only TCP listener speaking just enough HTTP/1.1 to serve
// the Ollama-compatible surface, with every accepted connection driven
// through one read-translate-forward-translate-write pass.
package proxy

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localforge/ollamabridge/internal/metrics"
	"github.com/localforge/ollamabridge/internal/pool"
	"github.com/localforge/ollamabridge/internal/rawhttp"
	"github.com/localforge/ollamabridge/internal/store"
	"github.com/localforge/ollamabridge/internal/upstream/openaicompat"
)

// State is the proxy lifecycle state. Transitions are the only
// mutation path and all happen under one mutex.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Server accepts vendor connections on a loopback port and proxies
// them to the upstream OpenAI-compatible service. All fields are set
// at construction; only the lifecycle state mutates afterwards.
type Server struct {
	port      int
	client    *openaicompat.Client
	logger    *log.Logger
	reqLogger *log.Logger
	metrics   *metrics.Metrics
	store     *store.Store
	gate      *pool.Gate

	mu    sync.Mutex
	state State
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Options carries the optional collaborators of a Server. Zero values
// disable the corresponding concern.
type Options struct {
	RequestLogger *log.Logger
	Metrics       *metrics.Metrics
	Store         *store.Store
	MaxConns      int
}

// NewServer creates a stopped proxy server listening on 127.0.0.1:port
// once started.
func NewServer(port int, client *openaicompat.Client, logger *log.Logger, opts Options) *Server {
	return &Server{
		port:      port,
		client:    client,
		logger:    logger,
		reqLogger: opts.RequestLogger,
		metrics:   opts.Metrics,
		store:     opts.Store,
		gate:      pool.NewGate(opts.MaxConns),
		state:     StateStopped,
		conns:     make(map[net.Conn]struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound listen address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the loopback listener and begins accepting connections.
// Starting from any state but Stopped is an error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != StateStopped {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start proxy from state %q", state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("failed to bind 127.0.0.1:%d: %w", s.port, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Printf("proxy listening on %s (upstream %s)", ln.Addr(), s.client.Addr())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and every live connection, then waits for
// the handlers to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot stop proxy from state %q", state)
	}
	s.state = StateStopping
	ln := s.ln
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	ln.Close()
	s.wg.Wait()

	s.mu.Lock()
	s.ln = nil
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Println("proxy stopped")
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by Stop, or a transient accept failure
			// after which the loop cannot usefully continue.
			return
		}
		s.mu.Lock()
		if s.state != StateRunning {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn owns one client connection end to end.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if s.metrics != nil {
		s.metrics.ConnOpened()
		defer s.metrics.ConnClosed()
	}

	if !s.gate.TryAcquire() {
		body := []byte(`{"error":"too many concurrent requests"}`)
		if err := rawhttp.WriteResponse(conn, 503, "application/json", body); err != nil {
			s.logger.Printf("failed to write overload response: %v", err)
		}
		return
	}
	defer s.gate.Release()

	id := uuid.NewString()
	start := time.Now()
	out := s.handleConn(conn)
	duration := time.Since(start)

	if out.status == 0 {
		// Empty probe or a client that vanished before the response.
		return
	}

	s.record(id, start, out, duration)
}

// record fans the connection outcome out to the request log, metrics
// and the store. None of these affect the data plane.
func (s *Server) record(id string, start time.Time, out *outcome, duration time.Duration) {
	if s.reqLogger != nil {
		s.reqLogger.Printf("id=%s endpoint=%s model=%s stream=%t status=%d chunks=%d prompt_tokens=%d eval_tokens=%d duration=%s",
			id, out.endpoint, out.model, out.stream, out.status, out.chunks, out.promptTokens, out.evalTokens, duration)
	}
	if s.metrics != nil {
		s.metrics.ObserveRequest(out.endpoint, out.status, duration)
	}
	if s.store != nil {
		rec := &store.RequestRecord{
			ID:              id,
			ReceivedAt:      start,
			Endpoint:        out.endpoint,
			Model:           out.model,
			Stream:          out.stream,
			Status:          out.status,
			Chunks:          out.chunks,
			PromptEvalCount: out.promptTokens,
			EvalCount:       out.evalTokens,
			DurationMs:      duration.Milliseconds(),
			UpstreamErr:     out.upstreamErr,
		}
		if err := s.store.Record(rec); err != nil {
			s.logger.Printf("failed to record request %s: %v", id, err)
		}
	}
}
