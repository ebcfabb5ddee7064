package mgoose

// Addr is the (ip, port, is_ipv6) tuple returned by Connection.LocalAddr
// and Connection.RemoteAddr (spec.md §6).
type Addr struct {
	IP     string
	Port   int
	IsIPv6 bool
}
