// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http

import (
	"bytes"
	"fmt"
	"strconv"
)

// Status reports how far Parse got with the bytes it was given.
type Status int

const (
	// StatusIncomplete means more bytes are needed before anything can
	// be reported — not even a header-complete event.
	StatusIncomplete Status = iota
	// StatusHeadersOnly means the header block is fully parsed but the
	// body is not yet fully buffered.
	StatusHeadersOnly
	// StatusComplete means the full message (headers + body) is ready;
	// Consumed reports how many leading bytes of the input it occupies.
	StatusComplete
)

var crlfcrlf = []byte("\r\n\r\n")

// Parse attempts to decode one HTTP request (isResponse=false) or
// response (isResponse=true) from the front of data. data is never
// retained past the call: on StatusHeadersOnly/StatusComplete the
// returned Message's byte slices alias data, so the caller must not
// reuse data's backing array until the corresponding handler call (if
// any) has returned.
func Parse(data []byte, isResponse bool) (msg *Message, status Status, consumed int, err error) {
	idx := bytes.Index(data, crlfcrlf)
	if idx < 0 {
		if len(data) > MaxHeaderBlock {
			return nil, StatusIncomplete, 0, fmt.Errorf("http: header block exceeds %d bytes", MaxHeaderBlock)
		}
		return nil, StatusIncomplete, 0, nil
	}

	head := data[:idx]
	lines := splitLines(head)
	if len(lines) == 0 {
		return nil, StatusIncomplete, 0, fmt.Errorf("http: empty request")
	}

	m := &Message{}
	if err := parseFirstLine(m, lines[0], isResponse); err != nil {
		return nil, StatusIncomplete, 0, err
	}

	contentLength := -1
	chunked := false
	for _, line := range lines[1:] {
		name, value, ok := splitHeaderLine(line)
		if !ok {
			continue // tolerate malformed header line, keep scanning
		}
		if m.nhdr < MaxHeaders {
			m.headers[m.nhdr] = Header{Name: name, Value: value}
			m.nhdr++
		}
		switch {
		case equalFoldBytes(name, "Content-Length"):
			if contentLength == -1 { // first occurrence wins; tolerate duplicates
				if n, perr := strconv.Atoi(string(bytes.TrimSpace(value))); perr == nil && n >= 0 {
					contentLength = n
				}
			}
		case equalFoldBytes(name, "Transfer-Encoding"):
			if bytes.Contains(bytes.ToLower(value), []byte("chunked")) {
				chunked = true
			}
		}
	}

	bodyStart := idx + len(crlfcrlf)

	switch {
	case chunked:
		body, total, ok := decodeChunked(data[bodyStart:])
		if !ok {
			return m, StatusHeadersOnly, 0, nil
		}
		m.body = body
		return m, StatusComplete, bodyStart + total, nil

	case contentLength > 0:
		if len(data)-bodyStart < contentLength {
			return m, StatusHeadersOnly, 0, nil
		}
		m.body = data[bodyStart : bodyStart+contentLength]
		return m, StatusComplete, bodyStart + contentLength, nil

	default:
		return m, StatusComplete, bodyStart, nil
	}
}

func parseFirstLine(m *Message, line []byte, isResponse bool) error {
	fields := bytes.SplitN(line, []byte(" "), 3)
	if len(fields) != 3 {
		return fmt.Errorf("http: malformed request/status line %q", line)
	}
	if isResponse {
		m.proto = fields[0]
		code, err := strconv.Atoi(string(fields[1]))
		if err != nil {
			return fmt.Errorf("http: malformed status code %q", fields[1])
		}
		m.status = code
		return nil
	}
	m.method = fields[0]
	uri := fields[1]
	if q := bytes.IndexByte(uri, '?'); q >= 0 {
		m.uri = uri[:q]
		m.query = uri[q+1:]
	} else {
		m.uri = uri
		m.query = nil
	}
	m.proto = fields[2]
	return nil
}

// splitLines splits on "\r\n", tolerating a bare "\n" as well.
func splitLines(b []byte) [][]byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	parts := bytes.Split(b, []byte("\n"))
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, p)
	}
	return out
}

func splitHeaderLine(line []byte) (name, value []byte, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return nil, nil, false
	}
	return bytes.TrimSpace(line[:i]), bytes.TrimSpace(line[i+1:]), true
}

// decodeChunked decodes an RFC 7230 chunked body starting at the given
// slice. Returns the concatenated body, the number of input bytes
// consumed through the terminating zero-chunk, and ok=false if the
// stream is not yet complete.
func decodeChunked(data []byte) (body []byte, consumed int, ok bool) {
	var out []byte
	pos := 0
	for {
		nl := bytes.Index(data[pos:], []byte("\r\n"))
		if nl < 0 {
			return nil, 0, false
		}
		sizeLine := data[pos : pos+nl]
		if semi := bytes.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}
		size, err := strconv.ParseInt(string(bytes.TrimSpace(sizeLine)), 16, 64)
		if err != nil || size < 0 {
			return nil, 0, false
		}
		pos += nl + 2
		if size == 0 {
			// Trailing CRLF after the zero-chunk terminates the stream.
			if len(data) < pos+2 {
				return nil, 0, false
			}
			return out, pos + 2, true
		}
		if int64(len(data)-pos) < size+2 {
			return nil, 0, false
		}
		out = append(out, data[pos:pos+int(size)]...)
		pos += int(size) + 2
	}
}
