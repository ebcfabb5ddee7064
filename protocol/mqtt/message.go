// Package mqtt implements an MQTT 3.1.1 fixed-header decoder sufficient
// to recognize CONNECT/CONNACK/PUBLISH/PUBACK/PINGREQ/PINGRESP/DISCONNECT
// and extract a PUBLISH's topic/payload (spec.md §4.7). QoS retry and
// session persistence are out of scope.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package mqtt

// PacketType is the MQTT control packet type carried in the fixed
// header's top nibble.
type PacketType byte

const (
	Connect     PacketType = 1
	Connack     PacketType = 2
	Publish     PacketType = 3
	Puback      PacketType = 4
	Pubrec      PacketType = 5
	Pubrel      PacketType = 6
	Pubcomp     PacketType = 7
	Subscribe   PacketType = 8
	Suback      PacketType = 9
	Unsubscribe PacketType = 10
	Unsuback    PacketType = 11
	Pingreq     PacketType = 12
	Pingresp    PacketType = 13
	Disconnect  PacketType = 14
)

// Message is a read-only view into one decoded MQTT control packet,
// borrowed from a Connection's receive buffer. Accessors return the
// zero value once the view has been invalidated, mirroring
// http.Message/ws.Message (spec.md §3, §9).
type Message struct {
	typ     PacketType
	flags   byte
	topic   []byte
	payload []byte
	qos     byte
	live    *bool
}

func (m *Message) alive() bool { return m.live != nil && *m.live }

// SetLive binds the view to a liveness flag owned by the dispatching
// Connection.
func (m *Message) SetLive(live *bool) { m.live = live }

// Invalidate clears the view's liveness flag.
func (m *Message) Invalidate() {
	if m.live != nil {
		*m.live = false
	}
}

// Type returns the decoded control packet type.
func (m *Message) Type() PacketType {
	if !m.alive() {
		return 0
	}
	return m.typ
}

// Flags returns the fixed header's low nibble (DUP/QoS/RETAIN for
// PUBLISH, reserved otherwise).
func (m *Message) Flags() byte {
	if !m.alive() {
		return 0
	}
	return m.flags
}

// Topic returns the PUBLISH topic name, or "" for any other packet type
// or an expired view.
func (m *Message) Topic() string {
	if !m.alive() {
		return ""
	}
	return string(m.topic)
}

// Payload returns the PUBLISH application payload.
func (m *Message) Payload() []byte {
	if !m.alive() {
		return nil
	}
	return m.payload
}

// QoS returns the PUBLISH QoS level (0, 1, or 2).
func (m *Message) QoS() byte {
	if !m.alive() {
		return 0
	}
	return m.qos
}
