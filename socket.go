package mgoose

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/mgoose/muri"
)

func resolveIP(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := net.LookupIP(host)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("mgoose: cannot resolve host %q", host)
	}
	return addrs[0], nil
}

func sockaddrFor(ip net.IP, port int) (unix.Sockaddr, int) {
	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}

func socketType(p muri.Parsed) int {
	if p.IsUDP {
		return unix.SOCK_DGRAM
	}
	return unix.SOCK_STREAM
}

// bindListen creates a non-blocking listening socket (or a bound UDP
// socket) for p.
func bindListen(p muri.Parsed) (fd int, family int, err error) {
	ip, err := resolveIP(p.Host)
	if err != nil {
		return 0, 0, err
	}
	sa, fam := sockaddrFor(ip, p.Port)

	fd, err = unix.Socket(fam, socketType(p)|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("mgoose: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, 0, fmt.Errorf("mgoose: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, 0, fmt.Errorf("mgoose: bind: %w", err)
	}
	if !p.IsUDP {
		if err := unix.Listen(fd, 128); err != nil {
			unix.Close(fd)
			return 0, 0, fmt.Errorf("mgoose: listen: %w", err)
		}
	}
	return fd, fam, nil
}

// dialNonblocking creates a non-blocking socket and starts connecting to
// p. pending reports whether the connect is still in progress (EINPROGRESS).
func dialNonblocking(p muri.Parsed) (fd int, family int, pending bool, err error) {
	ip, err := resolveIP(p.Host)
	if err != nil {
		return 0, 0, false, err
	}
	sa, fam := sockaddrFor(ip, p.Port)

	fd, err = unix.Socket(fam, socketType(p)|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, false, fmt.Errorf("mgoose: socket: %w", err)
	}
	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, fam, false, nil
	}
	if err == unix.EINPROGRESS {
		return fd, fam, true, nil
	}
	unix.Close(fd)
	return 0, 0, false, fmt.Errorf("mgoose: connect: %w", err)
}

func sockLocalAddr(fd int, family int) *Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return addrFromSockaddr(sa)
}

func sockPeerAddr(fd int, family int) *Addr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil
	}
	return addrFromSockaddr(sa)
}

func addrFromSockaddr(sa unix.Sockaddr) *Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &Addr{IP: net.IP(v.Addr[:]).String(), Port: v.Port, IsIPv6: false}
	case *unix.SockaddrInet6:
		return &Addr{IP: net.IP(v.Addr[:]).String(), Port: v.Port, IsIPv6: true}
	default:
		return nil
	}
}
