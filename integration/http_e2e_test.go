//go:build linux

// Package integration exercises mgoose end to end against real TCP clients,
// mirroring the nested test-module pattern of the teacher repo's own
// tests/go.mod (a separate module so the main module never depends on a
// client-only library like gorilla/websocket).
package integration

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/momentics/mgoose"
	httpproto "github.com/momentics/mgoose/protocol/http"
)

func pollUntil(t *testing.T, m *mgoose.Manager, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := m.Poll(20 * time.Millisecond); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestHTTPJSONAndBasicAuthEndToEnd(t *testing.T) {
	m, err := mgoose.New()
	if err != nil {
		t.Fatalf("mgoose.New() error = %v", err)
	}
	defer m.Close()

	handler := func(c *mgoose.Connection, ev mgoose.Event, data any) {
		if ev != mgoose.EvHTTPMessage {
			return
		}
		msg := data.(*httpproto.Message)
		switch msg.URI() {
		case "/json":
			body, _ := httpproto.ReplyJSON(map[string]string{"status": "ok"}, 200, nil)
			c.Send(body)
		case "/secure":
			if msg.Header("Authorization") == "" {
				c.Send(httpproto.Reply(401, nil, map[string]string{"WWW-Authenticate": "Basic"}))
				return
			}
			c.Send(httpproto.Reply(200, []byte("secure-ok"), nil))
		}
	}

	ln, err := m.Listen("http://127.0.0.1:0", mgoose.WithHandler(handler))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, _ := ln.LocalAddr()
	base := fmt.Sprintf("http://%s:%d", addr.IP, addr.Port)

	done := make(chan struct{})
	var jsonBody, secureBody string
	var secureStatus int
	go func() {
		defer close(done)
		resp, err := http.Get(base + "/json")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			jsonBody = string(b)
			resp.Body.Close()
		}
		req, _ := http.NewRequest("GET", base+"/secure", nil)
		req.SetBasicAuth("testuser", "testpass")
		resp2, err := http.DefaultClient.Do(req)
		if err == nil {
			secureStatus = resp2.StatusCode
			b, _ := io.ReadAll(resp2.Body)
			secureBody = string(b)
			resp2.Body.Close()
		}
	}()

	pollUntil(t, m, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second)

	if !strings.Contains(jsonBody, `"status":"ok"`) {
		t.Fatalf("jsonBody = %q, want to contain status:ok", jsonBody)
	}
	if secureStatus != 200 || secureBody != "secure-ok" {
		t.Fatalf("secureStatus=%d secureBody=%q, want 200/secure-ok", secureStatus, secureBody)
	}
}

func TestAdversarialSlowLorisByteAtATimeSurvives(t *testing.T) {
	m, err := mgoose.New()
	if err != nil {
		t.Fatalf("mgoose.New() error = %v", err)
	}
	defer m.Close()

	ln, err := m.Listen("http://127.0.0.1:0", mgoose.WithHandler(func(c *mgoose.Connection, ev mgoose.Event, data any) {
		if ev == mgoose.EvHTTPMessage {
			c.Send(httpproto.Reply(200, []byte("OK"), nil))
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, _ := ln.LocalAddr()
	target := fmt.Sprintf("%s:%d", addr.IP, addr.Port)

	conn, err := net.Dial("tcp", target)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	request := "GET /slow HTTP/1.1\r\nHost: x\r\n\r\n"
	go func() {
		for i := 0; i < len(request); i++ {
			conn.Write([]byte{request[i]})
			time.Sleep(time.Millisecond)
		}
	}()

	reader := bufio.NewReader(conn)
	done := make(chan struct{})
	var statusLine string
	go func() {
		defer close(done)
		line, _ := reader.ReadString('\n')
		statusLine = line
	}()

	pollUntil(t, m, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second)
	conn.Close()

	if !strings.HasPrefix(statusLine, "HTTP/1.1 200") {
		t.Fatalf("statusLine = %q, want HTTP/1.1 200 prefix", statusLine)
	}
}
