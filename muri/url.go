// Package muri parses the scheme://host:port[/path] URL forms the manager
// accepts in Listen/Connect, and infers the protocol discriminator from
// the scheme (spec.md §4.1, §6).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package muri

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/momentics/mgoose/mgerr"
)

// Proto is the protocol discriminator a Listen/Connect scheme maps to.
type Proto int

const (
	ProtoRaw Proto = iota
	ProtoHTTP
	ProtoMQTT
)

// Parsed holds the decomposed pieces of a listen/connect URL.
type Parsed struct {
	Scheme string
	Host   string
	Port   int // 0 means "ephemeral, choose one"
	Path   string
	IsUDP  bool
	UseTLS bool
}

// knownSchemes lists every scheme spec.md §6 accepts.
var knownSchemes = map[string]bool{
	"tcp": true, "udp": true,
	"http": true, "https": true,
	"ws": true, "wss": true,
	"mqtt": true, "mqtts": true,
}

// Parse decomposes a scheme://host:port[/path] URL.
func Parse(raw string) (Parsed, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", mgerr.ErrInvalidURL, err)
	}
	scheme := u.Scheme
	if !knownSchemes[scheme] {
		return Parsed{}, fmt.Errorf("%w: %q", mgerr.ErrUnknownScheme, scheme)
	}

	host := u.Hostname()
	portStr := u.Port()
	port := 0
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return Parsed{}, fmt.Errorf("%w: invalid port %q", mgerr.ErrInvalidURL, portStr)
		}
	}
	if host == "" {
		return Parsed{}, fmt.Errorf("%w: missing host in %q", mgerr.ErrInvalidURL, raw)
	}

	return Parsed{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   u.Path,
		IsUDP:  scheme == "udp",
		UseTLS: scheme == "https" || scheme == "wss" || scheme == "mqtts",
	}, nil
}

// Addr joins Host and Port into a dial/listen address string.
func (p Parsed) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// InferProto maps a scheme to its default protocol discriminator per
// spec.md §4.1: http|https|ws|wss infer HTTP on; tcp|udp|mqtt infer it
// off (or MQTT discriminator for the mqtt scheme family).
func InferProto(scheme string) Proto {
	switch scheme {
	case "http", "https", "ws", "wss":
		return ProtoHTTP
	case "mqtt", "mqtts":
		return ProtoMQTT
	default:
		return ProtoRaw
	}
}
