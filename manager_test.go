//go:build linux

package mgoose

import (
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	httpproto "github.com/momentics/mgoose/protocol/http"
)

func pollUntil(t *testing.T, m *Manager, cond func() bool, timeout time.Duration) {
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

func TestHTTPEchoReply(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	ln, err := m.Listen("http://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvHTTPMessage {
			_ = data.(*httpproto.Message)
			c.Send(httpproto.Reply(200, []byte("OK"), nil))
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, ok := ln.LocalAddr()
	if !ok || addr.Port == 0 {
		t.Fatalf("LocalAddr() = %+v, %v, want bound ephemeral port", addr, ok)
	}

	var resp *http.Response
	var respErr error
	done := make(chan struct{})
	go func() {
		resp, respErr = http.Get("http://" + addr.IP + ":" + itoa(addr.Port) + "/test")
		close(done)
	}()

	pollUntil(t, m, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second)

	if respErr != nil {
		t.Fatalf("http.Get() error = %v", respErr)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Fatalf("body = %q, want OK", body)
	}
}

func TestPerListenerHandlerIsolation(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	lnA, err := m.Listen("http://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvHTTPMessage {
			c.Send(httpproto.Reply(200, []byte("HandlerA"), nil))
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	lnB, err := m.Listen("http://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvHTTPMessage {
			c.Send(httpproto.Reply(200, []byte("HandlerB"), nil))
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	addrA, _ := lnA.LocalAddr()
	addrB, _ := lnB.LocalAddr()

	var bodyA, bodyB string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		resp, err := http.Get("http://" + addrA.IP + ":" + itoa(addrA.Port) + "/")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			bodyA = string(b)
			resp.Body.Close()
		}
	}()
	go func() {
		defer wg.Done()
		resp, err := http.Get("http://" + addrB.IP + ":" + itoa(addrB.Port) + "/")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			bodyB = string(b)
			resp.Body.Close()
		}
	}()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	pollUntil(t, m, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second)

	if bodyA != "HandlerA" || bodyB != "HandlerB" {
		t.Fatalf("bodyA=%q bodyB=%q, want HandlerA/HandlerB", bodyA, bodyB)
	}
}

func TestSchemeInferenceHTTPvsTCP(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	httpConn, err := m.Listen("http://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if httpConn.Proto() != ProtoHTTP {
		t.Fatalf("Proto() = %v, want ProtoHTTP for http:// scheme", httpConn.Proto())
	}

	tcpConn, err := m.Listen("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if tcpConn.Proto() != ProtoRaw {
		t.Fatalf("Proto() = %v, want ProtoRaw for tcp:// scheme", tcpConn.Proto())
	}

	overridden, err := m.Listen("http://127.0.0.1:0", WithHTTP(false))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if overridden.Proto() != ProtoRaw {
		t.Fatalf("Proto() = %v, want ProtoRaw when WithHTTP(false) overrides scheme inference", overridden.Proto())
	}
}

func TestPollNonReentrant(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	_, err = m.Listen("http://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvPoll {
			if perr := m.Poll(0); perr == nil {
				t.Error("nested Poll() error = nil, want re-entrance error")
			}
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if err := m.Poll(10 * time.Millisecond); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
}

func TestCloseTwiceDoesNotFault(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.Close()
	m.Close()
	if err := m.Poll(0); err == nil {
		t.Fatal("Poll() after Close() error = nil, want error")
	}
}

func TestWakeupDelivery(t *testing.T) {
	m, err := New(WithWakeup())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	var received []byte
	var mu sync.Mutex
	c, err := m.Listen("tcp://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvWakeup {
			mu.Lock()
			received = data.([]byte)
			mu.Unlock()
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Wakeup(c.ID, []byte("ping"))
	}()

	pollUntil(t, m, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil
	}, 5*time.Second)

	mu.Lock()
	got := string(received)
	mu.Unlock()
	if got != "ping" {
		t.Fatalf("received = %q, want ping", got)
	}
}

func TestWakeupForUnknownConnDropsSilently(t *testing.T) {
	m, err := New(WithWakeup())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	if ok := m.Wakeup(9999, []byte("x")); !ok {
		t.Fatal("Wakeup() = false, want true (mailbox accepts regardless of target existence)")
	}
	// Draining should silently discard the record for a nonexistent id.
	if err := m.Poll(10 * time.Millisecond); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
}

func TestBasicAuthHeaderLiteralValue(t *testing.T) {
	got := httpproto.HTTPBasicAuth("testuser", "testpass")
	want := "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("testuser:testpass")) + "\r\n"
	if string(got) != want {
		t.Fatalf("HTTPBasicAuth() = %q, want %q", got, want)
	}
}

func TestChunkedThreePartStream(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	ln, err := m.Listen("http://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvHTTPMessage {
			c.Send([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
			c.Send(httpproto.HTTPChunk([]byte("First")))
			c.Send(httpproto.HTTPChunk([]byte("Second")))
			c.Send(httpproto.HTTPChunk([]byte("Third")))
			c.Send(httpproto.HTTPChunk(nil))
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, _ := ln.LocalAddr()

	var body string
	done := make(chan struct{})
	go func() {
		resp, err := http.Get("http://" + addr.IP + ":" + itoa(addr.Port) + "/")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			body = string(b)
			resp.Body.Close()
		}
		close(done)
	}()

	pollUntil(t, m, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second)

	for _, want := range []string{"First", "Second", "Third"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body = %q, want to contain %q", body, want)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	ln, err := m.Listen("http://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, ok := ln.LocalAddr()
	if !ok {
		t.Fatal("LocalAddr() ok = false, want true")
	}
	if addr.Port == 0 || addr.IsIPv6 {
		t.Fatalf("LocalAddr() = %+v, want nonzero port, IsIPv6=false", addr)
	}
}

func TestAdversarialMalformedRequestLineStaysAlive(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	ln, err := m.Listen("http://127.0.0.1:0", WithHandler(func(c *Connection, ev Event, data any) {
		if ev == EvHTTPMessage {
			c.Send(httpproto.Reply(200, []byte("OK"), nil))
		}
	}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, _ := ln.LocalAddr()
	target := addr.IP + ":" + itoa(addr.Port)

	conn, err := net.Dial("tcp", target)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn.Write([]byte("NOT_HTTP garbage\r\n\r\n"))
	pollUntil(t, m, func() bool { return true }, 200*time.Millisecond)
	conn.Close()

	var resp *http.Response
	var respErr error
	done := make(chan struct{})
	go func() {
		resp, respErr = http.Get("http://" + target + "/healthcheck")
		close(done)
	}()
	pollUntil(t, m, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second)
	if respErr != nil {
		t.Fatalf("http.Get() error = %v after malformed-request survival check", respErr)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
