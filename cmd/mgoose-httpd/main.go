// File: cmd/mgoose-httpd/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal HTTP/1.1 server exercising mgoose's HTTP protocol decoder:
// a health check, a JSON reply, and a chunked-transfer endpoint.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/momentics/mgoose"
	httpproto "github.com/momentics/mgoose/protocol/http"
)

func main() {
	addr := flag.String("addr", "http://0.0.0.0:8080", "listen address")
	flag.Parse()

	m, err := mgoose.New()
	if err != nil {
		log.Fatalf("mgoose.New: %v", err)
	}

	if _, err := m.Listen(*addr, mgoose.WithHandler(httpHandler)); err != nil {
		log.Fatalf("Listen(%s): %v", *addr, err)
	}
	log.Printf("mgoose-httpd listening on %s", *addr)

	if err := m.Run(200 * time.Millisecond); err != nil {
		log.Fatalf("Run: %v", err)
	}
}

func httpHandler(c *mgoose.Connection, ev mgoose.Event, data any) {
	if ev != mgoose.EvHTTPMessage {
		return
	}
	msg := data.(*httpproto.Message)
	switch msg.URI() {
	case "/healthcheck":
		c.Send(httpproto.Reply(200, []byte("OK"), nil))
	case "/json":
		body, err := httpproto.ReplyJSON(map[string]string{"status": "ok"}, 200, nil)
		if err != nil {
			c.Send(httpproto.Reply(500, nil, nil))
			return
		}
		c.Send(body)
	case "/chunked":
		c.Send([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
		c.Send(httpproto.HTTPChunk([]byte("First")))
		c.Send(httpproto.HTTPChunk([]byte("Second")))
		c.Send(httpproto.HTTPChunk([]byte("Third")))
		c.Send(httpproto.HTTPChunk(nil))
	default:
		c.Send(httpproto.Reply(404, []byte("not found"), nil))
	}
}
