// Package rawhttp implements the minimal HTTP/1.1 framing the proxy
// speaks on its raw TCP connections: just enough request parsing to
// extract method, path, headers and a Content-Length body, and just
// enough response writing for single-shot and close-delimited bodies.
// It is deliberately not a general HTTP implementation.
package rawhttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrEmptyRequest is returned when the peer closes the connection
// without sending any bytes, e.g. a port probe.
var ErrEmptyRequest = errors.New("empty request")

const (
	// readIncrement is the per-read buffer size for accumulating requests.
	readIncrement = 4096

	// maxRequestBytes caps header+body accumulation for one request.
	maxRequestBytes = 1 << 20
)

var crlfcrlf = []byte("\r\n\r\n")

// Request is a parsed inbound HTTP request.
type Request struct {
	Method  string
	Path    string
	Proto   string
	Headers Headers
	Body    []byte
}

// Headers stores header fields keyed by lower-cased name.
type Headers map[string]string

// Get returns the value for a header name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Set stores a header value under the lower-cased name.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// ReadRequest accumulates bytes from r until a full request is available:
// headers terminated by a blank line, plus Content-Length body bytes when
// that header is present. If the peer closes the connection before the
// header terminator arrives, whatever was accumulated is parsed as a
// best-effort request.
func ReadRequest(r io.Reader) (*Request, error) {
	var raw []byte
	buf := make([]byte, readIncrement)

	for {
		if complete(raw) {
			break
		}
		if len(raw) > maxRequestBytes {
			return nil, fmt.Errorf("request exceeds %d bytes", maxRequestBytes)
		}
		n, err := r.Read(buf)
		raw = append(raw, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read request: %w", err)
		}
	}

	return parseRequest(raw)
}

// complete reports whether raw holds the header terminator and, when a
// Content-Length header is present, at least that many body bytes.
func complete(raw []byte) bool {
	idx := bytes.Index(raw, crlfcrlf)
	if idx < 0 {
		return false
	}
	cl, ok := contentLength(raw[:idx])
	if !ok {
		return true
	}
	return len(raw)-(idx+len(crlfcrlf)) >= cl
}

// contentLength scans a raw header block for Content-Length,
// case-insensitively. Returns false if the header is absent or invalid.
func contentLength(head []byte) (int, bool) {
	for _, line := range strings.Split(string(head), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func parseRequest(raw []byte) (*Request, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyRequest
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("request is not valid UTF-8")
	}

	head := raw
	var body []byte
	if idx := bytes.Index(raw, crlfcrlf); idx >= 0 {
		head = raw[:idx]
		body = raw[idx+len(crlfcrlf):]
	}

	lines := strings.Split(string(head), "\r\n")
	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed request line %q", lines[0])
	}
	req := &Request{
		Method:  fields[0],
		Path:    fields[1],
		Headers: make(Headers),
	}
	if len(fields) >= 3 {
		req.Proto = fields[2]
	}

	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		req.Headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	// Trim any bytes past the declared body length; a pipelined follow-up
	// request would otherwise leak into the body.
	if cl, ok := contentLength(head); ok && cl < len(body) {
		body = body[:cl]
	}
	req.Body = body

	return req, nil
}
