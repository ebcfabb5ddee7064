// Package sntp implements a client-only RFC 4330 SNTP request/reply
// codec (spec.md §4.7). A connection built with SNTPConnect sends one
// request on connect and fires EvSNTPTime with the decoded transmit
// timestamp once the reply arrives, then closes.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package sntp

import (
	"encoding/binary"
	"fmt"
	"time"
)

const packetSize = 48

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// Request builds an RFC 4330 client request packet: LI=0, VN=4, Mode=3
// (client), all other fields zero.
func Request() []byte {
	pkt := make([]byte, packetSize)
	pkt[0] = (0 << 6) | (4 << 3) | 3
	return pkt
}

// DecodeReply extracts the transmit timestamp from a server reply.
// Returns ok=false if raw is not yet a complete 48-byte packet.
func DecodeReply(raw []byte) (t time.Time, ok bool, err error) {
	if len(raw) < packetSize {
		return time.Time{}, false, nil
	}
	mode := raw[0] & 0x07
	if mode != 4 && mode != 5 { // server or broadcast
		return time.Time{}, false, fmt.Errorf("sntp: unexpected mode %d in reply", mode)
	}

	seconds := binary.BigEndian.Uint32(raw[40:44])
	fraction := binary.BigEndian.Uint32(raw[44:48])

	unixSeconds := int64(seconds) - ntpEpochOffset
	nanos := int64(float64(fraction) / (1 << 32) * 1e9)
	return time.Unix(unixSeconds, nanos).UTC(), true, nil
}
