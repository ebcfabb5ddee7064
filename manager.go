// Package mgoose is an embedded, single-threaded, event-driven network
// runtime exposing a uniform poll(timeout) primitive over TCP, UDP,
// HTTP/1.1, WebSocket, MQTT, and SNTP (spec.md §1).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package mgoose

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/mgoose/control"
	"github.com/momentics/mgoose/internal/mailbox"
	"github.com/momentics/mgoose/internal/reactor"
	"github.com/momentics/mgoose/internal/timer"
	"github.com/momentics/mgoose/mgerr"
	"github.com/momentics/mgoose/muri"
	"github.com/momentics/mgoose/protocol/http"
	"github.com/momentics/mgoose/protocol/mqtt"
	"github.com/momentics/mgoose/protocol/sntp"
	"github.com/momentics/mgoose/protocol/ws"
)

// Manager owns a set of connections, a timer wheel, an optional wakeup
// mailbox, a default handler, and an error sink (spec.md §3, §4.1).
type Manager struct {
	reactor reactor.Reactor
	timers  *timer.Wheel

	conns  map[uint64]*Connection
	byFD   map[int]*Connection
	nextID uint64

	defaultHandler Handler
	errorHandler   func(c *Connection, recovered any)

	wakeupEnabled bool
	mailbox       *mailbox.Mailbox
	pipeRead      int
	pipeWrite     int

	inPoll atomic.Bool
	closed bool
}

// New constructs a Manager per the given Options.
func New(opts ...Option) (*Manager, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("mgoose: %w", err)
	}
	m := &Manager{
		reactor: r,
		timers:  timer.NewWheel(),
		conns:   make(map[uint64]*Connection),
		byFD:    make(map[int]*Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.errorHandler == nil {
		m.errorHandler = func(c *Connection, recovered any) {
			control.Logf(control.LevelError, "mgoose: unhandled panic on conn %d: %v", c.ID, recovered)
		}
	}
	if m.wakeupEnabled {
		if err := m.initMailbox(); err != nil {
			r.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) initMailbox() error {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("mgoose: self-pipe: %w", err)
	}
	m.pipeRead, m.pipeWrite = fds[0], fds[1]
	if err := m.reactor.Add(m.pipeRead, reactor.Readable); err != nil {
		return fmt.Errorf("mgoose: register self-pipe: %w", err)
	}
	m.mailbox = mailbox.New()
	go m.forwardWakeups()
	return nil
}

// forwardWakeups relays mailbox signals to the self-pipe so a blocked
// epoll_wait on another thread's poll tick wakes up. It is the one piece
// of Manager machinery that intentionally runs off the owner thread,
// mirroring the C library's self-pipe producer side.
func (m *Manager) forwardWakeups() {
	for range m.mailbox.Signal() {
		var b [1]byte
		unix.Write(m.pipeWrite, b[:])
	}
}

// Wakeup, with its counterpart WakeupErr, is the only thread-safe Manager
// method (spec.md §5). It appends
// a record to the mailbox and returns whether the mailbox accepted it.
func (m *Manager) Wakeup(connID uint64, data []byte) bool {
	if m.mailbox == nil {
		return false
	}
	return m.mailbox.Post(connID, data)
}

// WakeupErr is Wakeup's error-returning counterpart: it reports
// mgerr.ErrMailboxDisabled instead of a bare false when WithWakeup was
// never applied to this Manager.
func (m *Manager) WakeupErr(connID uint64, data []byte) error {
	if m.mailbox == nil {
		return mgerr.ErrMailboxDisabled
	}
	m.mailbox.Post(connID, data)
	return nil
}

// Connections returns an immutable snapshot of live connections.
func (m *Manager) Connections() []*Connection {
	out := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TimerAdd inserts a callback into the timer wheel (spec.md §4.4).
func (m *Manager) TimerAdd(interval time.Duration, cb func(), repeat, runNow bool) *timer.Timer {
	return m.timers.Add(time.Now(), interval, cb, repeat, runNow)
}

func (m *Manager) nextConnID() uint64 {
	m.nextID++
	return m.nextID
}

// Listen binds and listens on url, inferring the HTTP discriminator from
// the scheme unless overridden by WithHTTP (spec.md §4.1).
func (m *Manager) Listen(url string, opts ...ConnOption) (*Connection, error) {
	if m.closed {
		return nil, mgerr.ErrClosed
	}
	p, err := muri.Parse(url)
	if err != nil {
		return nil, err
	}
	cfg := applyConnOpts(opts)

	fd, family, err := bindListen(p)
	if err != nil {
		return nil, err
	}
	c := newConnection(m, m.nextConnID(), fd)
	c.set(FlagListening)
	if p.IsUDP {
		c.set(FlagUDP)
	}
	c.local = sockLocalAddr(fd, family)
	c.proto = resolveProto(p, cfg)
	c.handler = cfg.handler

	if err := m.reactor.Add(fd, reactor.Readable); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mgoose: %w", err)
	}
	m.register(c)
	m.dispatch(c, EvOpen, nil)
	return c, nil
}

// Connect opens a non-blocking outbound connection to url (spec.md §4.1).
func (m *Manager) Connect(url string, opts ...ConnOption) (*Connection, error) {
	if m.closed {
		return nil, mgerr.ErrClosed
	}
	p, err := muri.Parse(url)
	if err != nil {
		return nil, err
	}
	cfg := applyConnOpts(opts)

	fd, family, pending, err := dialNonblocking(p)
	if err != nil {
		return nil, err
	}
	c := newConnection(m, m.nextConnID(), fd)
	c.set(FlagClient)
	if p.IsUDP {
		c.set(FlagUDP)
	}
	c.connectPending = pending
	c.remote = &Addr{IP: p.Host, Port: p.Port, IsIPv6: family == unix.AF_INET6}
	c.proto = resolveProto(p, cfg)
	c.handler = cfg.handler

	mask := reactor.Readable
	if pending {
		mask |= reactor.Writable
	}
	if err := m.reactor.Add(fd, mask); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mgoose: %w", err)
	}
	m.register(c)
	if !pending {
		c.local = sockLocalAddr(fd, family)
		m.dispatch(c, EvConnect, nil)
	}
	return c, nil
}

// MQTTListen is Listen with the MQTT protocol discriminator forced on
// (spec.md §4.7).
func (m *Manager) MQTTListen(url string, opts ...ConnOption) (*Connection, error) {
	c, err := m.Listen(url, opts...)
	if err != nil {
		return nil, err
	}
	c.proto = ProtoMQTT
	return c, nil
}

// MQTTConnect is Connect with the MQTT protocol discriminator forced on.
func (m *Manager) MQTTConnect(url string, opts ...ConnOption) (*Connection, error) {
	c, err := m.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	c.proto = ProtoMQTT
	return c, nil
}

// SNTPConnect opens an SNTP client connection: on open it sends one RFC
// 4330 request and, once the reply arrives, fires EvSNTPTime exactly
// once with the decoded time.Time, then closes (spec.md §4.7).
func (m *Manager) SNTPConnect(url string, opts ...ConnOption) (*Connection, error) {
	c, err := m.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	c.proto = ProtoSNTP
	c.set(FlagUDP)
	if !c.connectPending {
		c.Send(sntp.Request())
	}
	return c, nil
}

func applyConnOpts(opts []ConnOption) connConfig {
	var cfg connConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func resolveProto(p muri.Parsed, cfg connConfig) Proto {
	if cfg.httpSet {
		if cfg.httpWant {
			return ProtoHTTP
		}
		return ProtoRaw
	}
	if muri.InferProto(p.Scheme) == muri.ProtoHTTP {
		return ProtoHTTP
	}
	if muri.InferProto(p.Scheme) == muri.ProtoMQTT {
		return ProtoMQTT
	}
	return ProtoRaw
}

func (m *Manager) register(c *Connection) {
	m.conns[c.ID] = c
	m.byFD[c.fd] = c
}

func (m *Manager) unregister(c *Connection) {
	delete(m.conns, c.ID)
	delete(m.byFD, c.fd)
}

// Close idempotently closes all sockets and the reactor, and makes
// subsequent Poll calls fail (spec.md §4.1).
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	for _, c := range m.conns {
		unix.Close(c.fd)
		c.closed = true
		c.recv.Release()
		c.send.Release()
	}
	m.conns = make(map[uint64]*Connection)
	m.byFD = make(map[int]*Connection)
	if m.mailbox != nil {
		unix.Close(m.pipeRead)
		unix.Close(m.pipeWrite)
	}
	m.reactor.Close()
}

// Run is a convenience loop: it polls at pollInterval until SIGINT or
// SIGTERM arrives (or Poll fails), then closes the manager (spec.md §4.1).
func (m *Manager) Run(pollInterval time.Duration) error {
	stop := make(chan struct{})
	sig := installSignalStop(stop)
	defer restoreSignalStop(sig)

	for {
		select {
		case <-stop:
			m.Close()
			return nil
		default:
		}
		if err := m.Poll(pollInterval); err != nil {
			m.Close()
			return err
		}
	}
}

// dispatch invokes a connection's resolved handler, recovering from any
// panic and routing it to the manager's error handler (spec.md §4.1,
// §7 kind 3). invalidators, if given, are called after the handler
// returns to clear any message view passed as data.
func (m *Manager) dispatch(c *Connection, ev Event, data any, invalidators ...func()) {
	h := resolveHandler(c)
	defer func() {
		for _, inv := range invalidators {
			inv()
		}
	}()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			func() {
				defer func() {
					if r2 := recover(); r2 != nil {
						control.Logf(control.LevelError, "mgoose: error handler panicked: %v (original: %v)\n%s", r2, r, debug.Stack())
					}
				}()
				m.errorHandler(c, r)
			}()
		}
	}()
	h(c, ev, data)
}

func resolveHandler(c *Connection) Handler {
	// An accepted child's handler already holds the parent listener's
	// handler as snapshotted at accept time (see acceptLoop).
	if c.handler != nil {
		return c.handler
	}
	return c.mgr.defaultHandler
}

// Poll services one tick: due timers, drained wakeups, ready sockets,
// a POLL broadcast, then reaps closed connections (spec.md §4.1).
func (m *Manager) Poll(timeout time.Duration) error {
	if m.closed {
		return mgerr.ErrClosed
	}
	if !m.inPoll.CompareAndSwap(false, true) {
		return mgerr.ErrPollReentrant
	}
	defer m.inPoll.Store(false)

	if deadline, ok := m.timers.NextDeadline(); ok {
		if until := time.Until(deadline); until < timeout {
			if until < 0 {
				until = 0
			}
			timeout = until
		}
	}

	ready, err := m.reactor.Wait(timeout)
	if err != nil {
		return fmt.Errorf("mgoose: %w", err)
	}

	m.timers.Expire(time.Now())
	m.drainWakeups(ready)
	m.serviceSockets(ready)
	m.flushPending()

	for _, c := range m.conns {
		if !c.has(FlagClosing) {
			m.dispatch(c, EvPoll, nil)
		}
	}
	m.flushPending()

	m.reap()
	return nil
}

// flushPending writes out any connection's send buffer filled by a
// handler this tick, rather than waiting for the next writable
// readiness notification — the common request/response case completes
// within the same poll tick it was produced in.
func (m *Manager) flushPending() {
	for _, c := range m.conns {
		if !c.closed && !c.IsListening() && c.send.Len() > 0 {
			m.flushSend(c)
		}
	}
}

func (m *Manager) drainWakeups(ready []reactor.Ready) {
	if m.mailbox == nil {
		return
	}
	sawSignal := false
	for _, rdy := range ready {
		if rdy.Fd == m.pipeRead {
			sawSignal = true
		}
	}
	if !sawSignal {
		return
	}
	var scratch [256]byte
	for {
		n, err := unix.Read(m.pipeRead, scratch[:])
		if n <= 0 || err != nil {
			break
		}
	}
	for _, rec := range m.mailbox.Drain() {
		c, ok := m.conns[rec.ConnID]
		if !ok {
			continue // best-effort: dropped without error
		}
		m.dispatch(c, EvWakeup, rec.Data)
	}
}

func (m *Manager) serviceSockets(ready []reactor.Ready) {
	for _, rdy := range ready {
		c, ok := m.byFD[rdy.Fd]
		if !ok || c.has(FlagClosing) {
			continue
		}
		switch {
		case c.has(FlagListening):
			if rdy.Mask&reactor.Readable != 0 {
				m.acceptLoop(c)
			}
		case c.connectPending && rdy.Mask&reactor.Writable != 0:
			m.finishConnect(c)
		default:
			if rdy.Mask&reactor.Readable != 0 {
				m.readSocket(c)
			}
			if rdy.Mask&reactor.Writable != 0 {
				m.flushSend(c)
			}
		}
	}
}

func (m *Manager) finishConnect(c *Connection) {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		c.Error(fmt.Sprintf("connect failed: errno %d", errno))
		c.CloseHard()
		return
	}
	c.connectPending = false
	c.local = sockLocalAddr(c.fd, unix.AF_INET)
	m.reactor.Modify(c.fd, reactor.Readable)
	m.dispatch(c, EvConnect, nil)
	if c.proto == ProtoSNTP {
		c.Send(sntp.Request())
		m.flushSend(c)
	}
}

func (m *Manager) acceptLoop(listener *Connection) {
	for {
		fd, _, err := unix.Accept4(listener.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			return
		}
		child := newConnection(m, m.nextConnID(), fd)
		child.parent = listener
		child.proto = listener.proto
		child.handler = listener.handler
		child.local = listener.local
		child.remote = sockPeerAddr(fd, unix.AF_INET)
		m.register(child)
		if err := m.reactor.Add(fd, reactor.Readable); err != nil {
			unix.Close(fd)
			m.unregister(child)
			continue
		}
		m.dispatch(child, EvAccept, nil)
		m.dispatch(child, EvOpen, nil)
	}
}

const readChunk = 4096

func (m *Manager) readSocket(c *Connection) {
	for {
		buf := c.recv.Reserve(readChunk)
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.recv.Commit(n)
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err != nil || n == 0 {
			c.set(FlagClosing)
			c.hardClose = true
			return
		}
		if n < readChunk {
			break
		}
	}
	m.decodeBuffered(c)
}

func (m *Manager) decodeBuffered(c *Connection) {
	switch c.proto {
	case ProtoHTTP:
		m.decodeHTTP(c)
	case ProtoWebSocket:
		m.decodeWS(c)
	case ProtoMQTT:
		m.decodeMQTT(c)
	case ProtoSNTP:
		m.decodeSNTP(c)
	default:
		if c.recv.Len() > 0 {
			data := append([]byte(nil), c.recv.Peek(-1)...)
			c.recv.Consume(len(data))
			m.dispatch(c, EvRead, data)
		}
	}
}

func (m *Manager) decodeHTTP(c *Connection) {
	for {
		raw := c.recv.Peek(-1)
		if len(raw) == 0 {
			return
		}
		msg, status, consumed, err := http.Parse(raw, false)
		if err != nil {
			c.set(FlagClosing)
			c.hardClose = true
			return
		}
		switch status {
		case http.StatusIncomplete:
			return
		case http.StatusHeadersOnly:
			if !c.httpHeadersFired {
				c.httpHeadersFired = true
				live := true
				msg.SetLive(&live)
				m.dispatch(c, EvHTTPHeaders, msg, msg.Invalidate)
			}
			return
		case http.StatusComplete:
			c.httpHeadersFired = false
			c.recv.Consume(consumed)
			live := true
			msg.SetLive(&live)
			m.dispatch(c, EvHTTPMessage, msg, msg.Invalidate)
			if c.has(FlagWebSocket) {
				m.dispatch(c, EvWSOpen, nil)
				m.decodeWS(c)
				return
			}
		}
	}
}

func (m *Manager) decodeWS(c *Connection) {
	for {
		raw := c.recv.Peek(-1)
		frame, consumed, err := ws.Decode(raw)
		if err != nil {
			c.set(FlagClosing)
			c.hardClose = true
			return
		}
		if frame == nil {
			return
		}
		c.recv.Consume(consumed)
		msg := ws.NewMessage(frame.Opcode, frame.Payload)
		live := true
		msg.SetLive(&live)
		if frame.Opcode.IsControl() {
			m.dispatch(c, EvWSControl, msg, msg.Invalidate)
		} else {
			m.dispatch(c, EvWSMessage, msg, msg.Invalidate)
		}
	}
}

func (m *Manager) decodeMQTT(c *Connection) {
	for {
		raw := c.recv.Peek(-1)
		if len(raw) == 0 {
			return
		}
		msg, consumed, err := mqtt.Decode(raw)
		if err != nil {
			c.set(FlagClosing)
			c.hardClose = true
			return
		}
		if msg == nil {
			return
		}
		c.recv.Consume(consumed)
		live := true
		msg.SetLive(&live)
		if msg.Type() == mqtt.Publish {
			m.dispatch(c, EvMQTTMessage, msg, msg.Invalidate)
		} else {
			m.dispatch(c, EvMQTTCmd, msg, msg.Invalidate)
		}
	}
}

func (m *Manager) decodeSNTP(c *Connection) {
	raw := c.recv.Peek(-1)
	t, ok, err := sntp.DecodeReply(raw)
	if err != nil {
		c.set(FlagClosing)
		c.hardClose = true
		return
	}
	if !ok {
		return
	}
	c.recv.Consume(len(raw))
	m.dispatch(c, EvSNTPTime, t)
	c.Close()
}

func (m *Manager) flushSend(c *Connection) {
	for c.send.Len() > 0 {
		data := c.send.Peek(-1)
		n, err := unix.Write(c.fd, data)
		if n > 0 {
			c.send.Consume(n)
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err != nil {
			c.set(FlagClosing)
			c.hardClose = true
			return
		}
		if n == 0 {
			return
		}
	}
	if c.send.Len() == 0 {
		m.dispatch(c, EvWrite, nil)
	}
}

func (m *Manager) reap() {
	var dead []*Connection
	for _, c := range m.conns {
		if !c.has(FlagClosing) {
			continue
		}
		if !c.hardClose && c.send.Len() > 0 {
			m.flushSend(c)
			if c.send.Len() > 0 {
				continue
			}
		}
		dead = append(dead, c)
	}
	for _, c := range dead {
		m.reactor.Remove(c.fd)
		unix.Close(c.fd)
		c.closed = true
		c.recv.Release()
		c.send.Release()
		m.dispatch(c, EvClose, nil)
		m.unregister(c)
	}
}
