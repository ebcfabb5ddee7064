// File: cmd/mgoose-wschat/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket broadcast chat server: every text message received from one
// client is relayed to every other connected client.
package main

import (
	"flag"
	"log"
	"sync"
	"time"

	"github.com/momentics/mgoose"
	httpproto "github.com/momentics/mgoose/protocol/http"
	"github.com/momentics/mgoose/protocol/ws"
)

// registry tracks every connection that has completed a WS upgrade.
type registry struct {
	mu      sync.RWMutex
	clients map[*mgoose.Connection]bool
}

func newRegistry() *registry { return &registry{clients: make(map[*mgoose.Connection]bool)} }

func (r *registry) add(c *mgoose.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = true
}

func (r *registry) remove(c *mgoose.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

func (r *registry) broadcast(sender *mgoose.Connection, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if c == sender {
			continue
		}
		c.WSSend(ws.OpcodeText, payload)
	}
}

func main() {
	addr := flag.String("addr", "http://0.0.0.0:8081", "listen address")
	flag.Parse()

	reg := newRegistry()

	m, err := mgoose.New()
	if err != nil {
		log.Fatalf("mgoose.New: %v", err)
	}
	handler := func(c *mgoose.Connection, ev mgoose.Event, data any) {
		switch ev {
		case mgoose.EvHTTPMessage:
			msg := data.(*httpproto.Message)
			if err := c.WSUpgrade(msg); err != nil {
				c.Send(httpproto.Reply(400, []byte("expected websocket upgrade"), nil))
				c.Close()
				return
			}
		case mgoose.EvWSOpen:
			reg.add(c)
		case mgoose.EvWSMessage:
			wsMsg := data.(*ws.Message)
			reg.broadcast(c, []byte(wsMsg.Text()))
		case mgoose.EvClose:
			reg.remove(c)
		}
	}

	if _, err := m.Listen(*addr, mgoose.WithHandler(handler)); err != nil {
		log.Fatalf("Listen(%s): %v", *addr, err)
	}
	log.Printf("mgoose-wschat listening on %s", *addr)

	if err := m.Run(200 * time.Millisecond); err != nil {
		log.Fatalf("Run: %v", err)
	}
}
