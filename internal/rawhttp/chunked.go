package rawhttp

import (
	"bytes"
	"strconv"
	"strings"
)

var crlf = []byte("\r\n")

// DecodeChunked reassembles a chunked transfer-encoded body into raw
// bytes. It is a best-effort decoder: a zero or unparsable size line
// stops decoding, chunk extensions are ignored, and trailers after the
// terminating chunk are not validated.
func DecodeChunked(body []byte) []byte {
	var out []byte
	rest := body

	for {
		nl := bytes.Index(rest, crlf)
		if nl < 0 {
			break
		}
		sizeLine := strings.TrimSpace(string(rest[:nl]))
		if i := strings.IndexByte(sizeLine, ';'); i >= 0 {
			sizeLine = strings.TrimSpace(sizeLine[:i])
		}
		size, err := strconv.ParseInt(sizeLine, 16, 32)
		if err != nil || size <= 0 {
			break
		}
		rest = rest[nl+len(crlf):]
		if int64(len(rest)) < size {
			break
		}
		out = append(out, rest[:size]...)
		rest = rest[size:]
		rest = bytes.TrimPrefix(rest, crlf)
	}

	return out
}
