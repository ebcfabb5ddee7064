// File: cmd/mgoose-echo/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP echo server built on mgoose's single-threaded poll loop. Implements
// explicit, cross-platform shutdown: on SIGINT/SIGTERM the manager is
// closed, which closes every live connection.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/momentics/mgoose"
)

func main() {
	addr := flag.String("addr", "tcp://0.0.0.0:9001", "listen address")
	flag.Parse()

	m, err := mgoose.New(mgoose.WithDefaultHandler(echoHandler))
	if err != nil {
		log.Fatalf("mgoose.New: %v", err)
	}

	if _, err := m.Listen(*addr); err != nil {
		log.Fatalf("Listen(%s): %v", *addr, err)
	}
	log.Printf("mgoose-echo listening on %s", *addr)

	if err := m.Run(200 * time.Millisecond); err != nil {
		log.Fatalf("Run: %v", err)
	}
}

func echoHandler(c *mgoose.Connection, ev mgoose.Event, data any) {
	switch ev {
	case mgoose.EvRead:
		c.Send(data.([]byte))
	case mgoose.EvError:
		log.Printf("conn %d error: %v", c.ID, data)
	}
}
