package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// statusText is a minimal status-line reason phrase table covering the
// codes mgoose itself ever writes; reasonPhrase falls back to "OK" for
// anything else.
var statusText = map[int]string{
	101: "Switching Protocols",
	200: "OK",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
}

func reasonPhrase(status int) string {
	if t, ok := statusText[status]; ok {
		return t
	}
	return "OK"
}

// Reply renders a complete HTTP/1.1 response, merging user-supplied
// headers with a Content-Length computed from body. Headers supplied by
// the caller take precedence over anything Reply would otherwise set,
// including Content-Length: a caller-supplied Content-Length is written
// as given and the body-derived one is omitted. A 101 response carries
// no Content-Length.
func Reply(status int, body []byte, headers map[string]string) []byte {
	out := make([]byte, 0, len(body)+256)
	out = append(out, fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, reasonPhrase(status))...)
	if status == 101 {
		out = appendHeadersNoLength(out, headers)
	} else {
		out = appendHeaders(out, headers, len(body))
	}
	out = append(out, "\r\n"...)
	out = append(out, body...)
	return out
}

func appendHeadersNoLength(out []byte, headers map[string]string) []byte {
	for k, v := range headers {
		out = append(out, k...)
		out = append(out, ": "...)
		out = append(out, v...)
		out = append(out, "\r\n"...)
	}
	return out
}

// ReplyJSON marshals value and writes it as a Reply with
// Content-Type: application/json, unless the caller already set
// Content-Type in headers.
func ReplyJSON(value any, status int, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("http: ReplyJSON: %w", err)
	}
	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	if _, has := merged["Content-Type"]; !has {
		merged["Content-Type"] = "application/json"
	}
	return Reply(status, body, merged), nil
}

func appendHeaders(out []byte, headers map[string]string, contentLength int) []byte {
	wroteCL := false
	for k, v := range headers {
		out = append(out, k...)
		out = append(out, ": "...)
		out = append(out, v...)
		out = append(out, "\r\n"...)
		if equalFoldBytes([]byte(k), "Content-Length") {
			wroteCL = true
		}
	}
	if !wroteCL {
		out = append(out, "Content-Length: "...)
		out = strconv.AppendInt(out, int64(contentLength), 10)
		out = append(out, "\r\n"...)
	}
	return out
}

// HTTPChunk renders one chunk of a chunked-transfer response. An empty
// data slice renders the terminating zero-length chunk that ends the
// stream (spec.md §4.2).
func HTTPChunk(data []byte) []byte {
	out := make([]byte, 0, len(data)+16)
	out = strconv.AppendInt(out, int64(len(data)), 16)
	out = append(out, "\r\n"...)
	out = append(out, data...)
	out = append(out, "\r\n"...)
	return out
}

// HTTPBasicAuth renders an "Authorization: Basic <b64>\r\n" header line
// for the given credentials. user/pass are encoded verbatim, including
// empty, non-ASCII, or colon-containing values.
func HTTPBasicAuth(user, pass string) []byte {
	creds := user + ":" + pass
	encoded := base64.StdEncoding.EncodeToString([]byte(creds))
	return []byte("Authorization: Basic " + encoded + "\r\n")
}
