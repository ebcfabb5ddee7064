//go:build linux

package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/mgoose"
	httpproto "github.com/momentics/mgoose/protocol/http"
	"github.com/momentics/mgoose/protocol/ws"
)

func TestWebSocketUpgradeAndEchoEndToEnd(t *testing.T) {
	m, err := mgoose.New()
	if err != nil {
		t.Fatalf("mgoose.New() error = %v", err)
	}
	defer m.Close()

	handler := func(c *mgoose.Connection, ev mgoose.Event, data any) {
		switch ev {
		case mgoose.EvHTTPMessage:
			msg := data.(*httpproto.Message)
			if err := c.WSUpgrade(msg); err != nil {
				t.Errorf("WSUpgrade() error = %v", err)
			}
		case mgoose.EvWSMessage:
			wsMsg := data.(*ws.Message)
			c.WSSend(ws.OpcodeText, wsMsg.Data())
		}
	}

	ln, err := m.Listen("http://127.0.0.1:0", mgoose.WithHandler(handler))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr, _ := ln.LocalAddr()
	url := fmt.Sprintf("ws://%s:%d/chat", addr.IP, addr.Port)

	var clientConn *websocket.Conn
	dialDone := make(chan struct{})
	go func() {
		defer close(dialDone)
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Errorf("Dial() error = %v", err)
			return
		}
		clientConn = c
	}()

	pollUntil(t, m, func() bool {
		select {
		case <-dialDone:
			return true
		default:
			return false
		}
	}, 3*time.Second)
	if clientConn == nil {
		t.Fatal("clientConn is nil after dial")
	}
	defer clientConn.Close()

	if err := clientConn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	var echoed string
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, data, err := clientConn.ReadMessage()
		if err != nil {
			t.Errorf("ReadMessage() error = %v", err)
			return
		}
		echoed = string(data)
	}()

	pollUntil(t, m, func() bool {
		select {
		case <-readDone:
			return true
		default:
			return false
		}
	}, 3*time.Second)

	if echoed != "hello" {
		t.Fatalf("echoed = %q, want hello", echoed)
	}
}
