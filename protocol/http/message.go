// Package http implements the HTTP/1.1 request/response parser and
// response writer of spec.md §4.2.
//
// Grounded on the teacher's protocol/handshake.go (header scanning style)
// and reshaped around spec.md's message-view lifetime discipline (§3,
// §9): every accessor on Message checks a shared "live" flag and returns
// the empty default once the owning Connection clears it at the end of a
// handler call.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package http

// MaxHeaders bounds the header table; headers beyond this cap are
// silently dropped (spec.md §4.2, header cap left as an open question —
// exposed here as a constant rather than hidden).
const MaxHeaders = 30

// MaxHeaderBlock bounds the total bytes accumulated before the
// terminating blank line is found, guarding against unbounded memory
// growth from a request that never completes its header block.
const MaxHeaderBlock = 1 << 20 // 1 MiB

// MaxQueryScratch bounds a single decoded query value (spec.md §4.2).
const MaxQueryScratch = 2048

// Header is one decoded header line; Name/Value are byte slices into the
// owning connection's receive buffer.
type Header struct {
	Name  []byte
	Value []byte
}

// Message is a read-only view into one HTTP request or response, borrowed
// from a Connection's receive buffer. Accessors return the zero value
// once the view has been invalidated (spec.md §3, §9).
type Message struct {
	method  []byte
	uri     []byte
	query   []byte
	proto   []byte
	status  int
	body    []byte
	headers [MaxHeaders]Header
	nhdr    int

	live *bool
}

func (m *Message) alive() bool { return m.live != nil && *m.live }

// Method returns the request method, or "" once the view has expired.
func (m *Message) Method() string {
	if !m.alive() {
		return ""
	}
	return string(m.method)
}

// URI returns the request path (without query string).
func (m *Message) URI() string {
	if !m.alive() {
		return ""
	}
	return string(m.uri)
}

// RawQuery returns the undecoded query string.
func (m *Message) RawQuery() string {
	if !m.alive() {
		return ""
	}
	return string(m.query)
}

// Proto returns the HTTP version token, e.g. "HTTP/1.1".
func (m *Message) Proto() string {
	if !m.alive() {
		return ""
	}
	return string(m.proto)
}

// Status returns the response status code, or 0 for a request message or
// an expired view.
func (m *Message) Status() int {
	if !m.alive() {
		return 0
	}
	return m.status
}

// Body returns the message body bytes.
func (m *Message) Body() []byte {
	if !m.alive() {
		return nil
	}
	return m.body
}

// NumHeaders returns the number of retained headers (<= MaxHeaders).
func (m *Message) NumHeaders() int {
	if !m.alive() {
		return 0
	}
	return m.nhdr
}

// HeaderAt returns the i-th retained header.
func (m *Message) HeaderAt(i int) Header {
	if !m.alive() || i < 0 || i >= m.nhdr {
		return Header{}
	}
	return m.headers[i]
}

// Header returns the first value for a case-insensitive header name
// match, or "" if absent or the view has expired.
func (m *Message) Header(name string) string {
	if !m.alive() {
		return ""
	}
	for i := 0; i < m.nhdr; i++ {
		if equalFoldBytes(m.headers[i].Name, name) {
			return string(m.headers[i].Value)
		}
	}
	return ""
}

func equalFoldBytes(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := range b {
		bc, sc := b[i], s[i]
		if 'A' <= bc && bc <= 'Z' {
			bc += 'a' - 'A'
		}
		if 'A' <= sc && sc <= 'Z' {
			sc += 'a' - 'A'
		}
		if bc != sc {
			return false
		}
	}
	return true
}

// invalidate clears the live flag; called by the owning Connection the
// instant a handler invocation returns.
func (m *Message) invalidate() {
	if m.live != nil {
		*m.live = false
	}
}

// SetLive binds the view to a liveness flag owned by the dispatching
// Connection. The Connection sets *live = true immediately before
// invoking a handler with this Message and false immediately after,
// per the view-lifetime discipline of spec.md §3/§9.
func (m *Message) SetLive(live *bool) { m.live = live }

// Invalidate clears the view's liveness flag. Exposed for the owning
// Connection; see SetLive.
func (m *Message) Invalidate() { m.invalidate() }
