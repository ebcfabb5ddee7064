package mgoose

// Handler is invoked once per dispatched event on a Connection. data is
// one of: nil, an *http.Message, a *ws.Message, a *mqtt.Message, a
// []byte (wakeup payload, or the raw bytes of EvRead), a time.Time
// (EvSNTPTime), or a string (error message) — see the event taxonomy in
// events.go.
type Handler func(c *Connection, event Event, data any)
