package openaicompat

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// CompletionsPath is the upstream chat completions endpoint.
	CompletionsPath = "/v1/chat/completions"
	// ModelsPath is the upstream model listing endpoint.
	ModelsPath = "/v1/models"

	readChunkSize = 4096
)

// Client dials the upstream OpenAI-compatible server. One fresh TCP
// connection is opened per proxied request; nothing is pooled or kept
// alive.
type Client struct {
	host        string
	port        int
	dialTimeout time.Duration
}

// NewClient creates a client for the upstream at host:port.
func NewClient(host string, port int, dialTimeout time.Duration) *Client {
	return &Client{host: host, port: port, dialTimeout: dialTimeout}
}

// Addr returns the upstream host:port string.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
}

// Conn is one outbound upstream connection. The caller must Close it
// on every path.
type Conn struct {
	net.Conn
	host string
}

// Open dials a new upstream connection.
func (c *Client) Open() (*Conn, error) {
	conn, err := net.DialTimeout("tcp", c.Addr(), c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to upstream %s: %w", c.Addr(), err)
	}
	return &Conn{Conn: conn, host: c.host}, nil
}

// WriteRequest serializes a minimal HTTP/1.1 request onto the
// connection. Connection: close is always sent; the response body ends
// when the upstream closes.
func (uc *Conn) WriteRequest(method, path string, body []byte) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&b, "Host: %s\r\n", uc.host)
	if len(body) > 0 {
		b.WriteString("Content-Type: application/json\r\n")
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(body)

	if _, err := uc.Write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write upstream request: %w", err)
	}
	return nil
}

// ReadAll buffers the entire upstream response until the connection
// closes. Used for non-streaming completions and model listing.
func (uc *Conn) ReadAll() ([]byte, error) {
	raw, err := io.ReadAll(uc)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	return raw, nil
}

// Consume reads the upstream response incrementally, invoking fn for
// each chunk of bytes as it arrives. A clean upstream close ends the
// loop with nil; an error from fn aborts it.
func (uc *Conn) Consume(fn func(chunk []byte) error) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := uc.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("upstream read failed: %w", err)
		}
	}
}
