package mgoose

import "fmt"

// Event is a stable integer event code dispatched to a Connection's
// handler (spec.md §4.1).
type Event int

const (
	EvPoll Event = iota
	EvResolve
	EvConnect
	EvAccept
	EvTLSHandshake
	EvRead
	EvWrite
	EvClose
	EvError
	EvOpen
	EvHTTPHeaders
	EvHTTPMessage
	EvWSOpen
	EvWSMessage
	EvWSControl
	EvMQTTCmd
	EvMQTTMessage
	EvMQTTOpen
	EvSNTPTime
	EvWakeup
	// EvUser is the base of the user-defined event range; user codes are
	// EvUser + k for k >= 0.
	EvUser Event = 1000
)

var eventNames = map[Event]string{
	EvPoll:         "POLL",
	EvResolve:      "RESOLVE",
	EvConnect:      "CONNECT",
	EvAccept:       "ACCEPT",
	EvTLSHandshake: "TLS_HS",
	EvRead:         "READ",
	EvWrite:        "WRITE",
	EvClose:        "CLOSE",
	EvError:        "ERROR",
	EvOpen:         "OPEN",
	EvHTTPHeaders:  "HTTP_HDRS",
	EvHTTPMessage:  "HTTP_MSG",
	EvWSOpen:       "WS_OPEN",
	EvWSMessage:    "WS_MSG",
	EvWSControl:    "WS_CTL",
	EvMQTTCmd:      "MQTT_CMD",
	EvMQTTMessage:  "MQTT_MSG",
	EvMQTTOpen:     "MQTT_OPEN",
	EvSNTPTime:     "SNTP_TIME",
	EvWakeup:       "WAKEUP",
}

// EventName maps an event code to a stable string, including USER+k for
// offsets beyond EvUser and an UNKNOWN(code) fallback.
func EventName(code Event) string {
	if name, ok := eventNames[code]; ok {
		return name
	}
	if code >= EvUser {
		if code == EvUser {
			return "USER"
		}
		return fmt.Sprintf("USER+%d", code-EvUser)
	}
	return fmt.Sprintf("UNKNOWN(%d)", code)
}
