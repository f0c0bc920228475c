package rawhttp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is a parsed upstream HTTP response with any chunked
// transfer-encoding already removed from the body.
type Response struct {
	StatusCode int
	Headers    Headers
	Body       []byte
}

// ParseResponse splits raw upstream response bytes into status, headers
// and body. Bodies declared as chunked are decoded before returning.
func ParseResponse(raw []byte) (*Response, error) {
	idx := bytes.Index(raw, crlfcrlf)
	if idx < 0 {
		return nil, fmt.Errorf("response has no header terminator")
	}

	lines := strings.Split(string(raw[:idx]), "\r\n")
	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed status line %q", lines[0])
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("malformed status code %q", fields[1])
	}

	resp := &Response{
		StatusCode: code,
		Headers:    make(Headers),
	}
	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		resp.Headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	body := raw[idx+len(crlfcrlf):]
	if strings.Contains(strings.ToLower(resp.Headers.Get("Transfer-Encoding")), "chunked") {
		body = DecodeChunked(body)
	}
	resp.Body = body

	return resp, nil
}

// WriteResponse writes a complete single-body response. Every response
// carries Connection: close; the proxy never reuses client connections.
func WriteResponse(w io.Writer, status int, contentType string, body []byte) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reasonPhrase(status))
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(body)
	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// WriteStreamHead writes the head of a close-delimited streaming
// response. No Content-Length: the body ends when the connection does.
func WriteStreamHead(w io.Writer, contentType string) error {
	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: %s\r\nConnection: close\r\n\r\n", contentType)
	if _, err := io.WriteString(w, head); err != nil {
		return fmt.Errorf("failed to write stream head: %w", err)
	}
	return nil
}

func reasonPhrase(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Status"
	}
}
