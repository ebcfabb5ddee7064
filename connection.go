package mgoose

import (
	"fmt"

	"github.com/momentics/mgoose/internal/iobuf"
	"github.com/momentics/mgoose/mgerr"
	"github.com/momentics/mgoose/protocol/http"
	"github.com/momentics/mgoose/protocol/ws"
)

// Proto is the protocol discriminator governing how a Connection's
// receive buffer is interpreted (spec.md §3).
type Proto int

const (
	ProtoRaw Proto = iota
	ProtoHTTP
	ProtoWebSocket
	ProtoMQTT
	ProtoSNTP
)

// Flag is a bit in Connection's flag set (spec.md §3).
type Flag uint32

const (
	FlagListening Flag = 1 << iota
	FlagClient
	FlagUDP
	FlagWebSocket
	FlagTLS
	FlagReadable
	FlagWritable
	FlagClosing
	FlagDraining
	FlagHexdumping
	FlagResp
)

// Connection represents one socket endpoint: a listener, an outbound
// client connection, or a server-accepted child (spec.md §3).
type Connection struct {
	ID uint64

	mgr    *Manager
	fd     int
	flags  Flag
	proto  Proto
	closed bool

	local  *Addr
	remote *Addr

	recv *iobuf.Buffer
	send *iobuf.Buffer

	handler  Handler
	parent   *Connection
	UserData any

	httpHeadersFired bool
	connectPending   bool
	hardClose        bool
}

func newConnection(mgr *Manager, id uint64, fd int) *Connection {
	return &Connection{
		ID:   id,
		mgr:  mgr,
		fd:   fd,
		recv: iobuf.New(2048),
		send: iobuf.New(2048),
	}
}

func (c *Connection) has(f Flag) bool { return c.flags&f != 0 }
func (c *Connection) set(f Flag)      { c.flags |= f }
func (c *Connection) clear(f Flag)    { c.flags &^= f }

// IsListening reports whether this connection is a listening socket.
func (c *Connection) IsListening() bool { return c.has(FlagListening) }

// IsClient reports whether this connection was created by Connect.
func (c *Connection) IsClient() bool { return c.has(FlagClient) }

// IsUDP reports whether this connection is a UDP socket.
func (c *Connection) IsUDP() bool { return c.has(FlagUDP) }

// IsWebSocket reports whether this connection has completed a WS upgrade.
func (c *Connection) IsWebSocket() bool { return c.has(FlagWebSocket) }

// IsTLS reports whether this connection negotiates TLS.
func (c *Connection) IsTLS() bool { return c.has(FlagTLS) }

// IsClosing reports whether this connection is draining toward close.
func (c *Connection) IsClosing() bool { return c.has(FlagClosing) }

// Proto returns the protocol discriminator.
func (c *Connection) Proto() Proto { return c.proto }

// SetHandler installs a per-connection handler override.
func (c *Connection) SetHandler(h Handler) { c.handler = h }

// LocalAddr returns the local address, or (Addr{}, false) if unbound.
func (c *Connection) LocalAddr() (Addr, bool) {
	if c.local == nil {
		return Addr{}, false
	}
	return *c.local, true
}

// RemoteAddr returns the remote address, or (Addr{}, false) if unconnected.
func (c *Connection) RemoteAddr() (Addr, bool) {
	if c.remote == nil {
		return Addr{}, false
	}
	return *c.remote, true
}

// Close marks the connection for graceful close: it is reaped at the end
// of the current poll tick once its send buffer has drained.
func (c *Connection) Close() {
	c.set(FlagClosing | FlagDraining)
}

// CloseHard marks the connection for immediate close, discarding any
// unsent bytes in the send buffer.
func (c *Connection) CloseHard() {
	c.set(FlagClosing)
	c.hardClose = true
}

// Error synthesizes an EvError event on this connection carrying msg.
func (c *Connection) Error(msg string) {
	c.mgr.dispatch(c, EvError, msg)
}

// Send enqueues bytes onto the send buffer; they are written to the
// socket as it becomes writable.
func (c *Connection) Send(data []byte) {
	if c.closed {
		return
	}
	c.send.Append(data)
}

// RecvLen returns the number of unconsumed bytes in the receive buffer,
// or 0 once the owning manager is closed.
func (c *Connection) RecvLen() int {
	if c.closed {
		return 0
	}
	return c.recv.Len()
}

// SendLen returns the number of pending bytes in the send buffer.
func (c *Connection) SendLen() int {
	if c.closed {
		return 0
	}
	return c.send.Len()
}

// RecvSize returns the receive buffer's current capacity.
func (c *Connection) RecvSize() int {
	if c.closed {
		return 0
	}
	return c.recv.Cap()
}

// SendSize returns the send buffer's current capacity.
func (c *Connection) SendSize() int {
	if c.closed {
		return 0
	}
	return c.send.Cap()
}

// RecvData returns up to n bytes from the front of the receive buffer;
// n<0 means "all". Returns an empty slice once the manager is closed.
func (c *Connection) RecvData(n int) []byte {
	if c.closed {
		return nil
	}
	return clampedView(c.recv, n)
}

// SendData returns up to n bytes from the front of the send buffer;
// n<0 means "all". Returns an empty slice once the manager is closed.
func (c *Connection) SendData(n int) []byte {
	if c.closed {
		return nil
	}
	return clampedView(c.send, n)
}

// WSUpgrade completes an RFC 6455 handshake against msg and switches the
// connection to WebSocket framing. It must be called from within the
// EvHTTPMessage handler that received msg (spec.md §4.3): the 101
// response is queued on the send buffer immediately, and bytes following
// the request in the receive buffer are handed to the frame decoder from
// that point on.
func (c *Connection) WSUpgrade(msg *http.Message) error {
	if c.proto != ProtoHTTP {
		return mgerr.ErrNotWebSocket
	}
	respHeaders, err := ws.Upgrade(msg.Header)
	if err != nil {
		return fmt.Errorf("mgoose: ws upgrade: %w", err)
	}
	c.Send(http.Reply(101, nil, respHeaders))
	c.set(FlagWebSocket)
	c.proto = ProtoWebSocket
	return nil
}

// WSSend frames payload as a single-frame WebSocket message of the given
// opcode and queues it on the send buffer (spec.md §4.3 ws_send).
func (c *Connection) WSSend(opcode ws.Opcode, payload []byte) {
	c.Send(ws.Encode(opcode, payload, true))
}

func clampedView(b *iobuf.Buffer, n int) []byte {
	if n < 0 || n > b.Len() {
		n = b.Len()
	}
	return b.Peek(n)
}
