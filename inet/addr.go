// File: inet/addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package inet holds the address and socket-option helpers the engines
// consume: address resolution, thin setsockopt/shutdown/close wrappers,
// listen/accept/connect primitives and process-wide network bootstrap.
package inet

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Addr is an IPv4 or IPv6 endpoint.
type Addr struct {
	ap netip.AddrPort
}

// New resolves host (an IP literal or a hostname) with the system
// resolver. An empty host means the unspecified address of the family.
func New(host string, port uint16, ipv6 bool) (Addr, error) {
	return Resolve(context.Background(), host, port, ipv6)
}

// Resolve is New with a context bounding the lookup.
func Resolve(ctx context.Context, host string, port uint16, ipv6 bool) (Addr, error) {
	if host == "" {
		ip := netip.IPv4Unspecified()
		if ipv6 {
			ip = netip.IPv6Unspecified()
		}
		return Addr{ap: netip.AddrPortFrom(ip, port)}, nil
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		if !ipv6 {
			ip = ip.Unmap()
		}
		return Addr{ap: netip.AddrPortFrom(ip, port)}, nil
	}
	network := "ip4"
	if ipv6 {
		network = "ip6"
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, network, host)
	if err != nil {
		return Addr{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return Addr{}, fmt.Errorf("resolve %s: no %s address", host, network)
	}
	ip := ips[0]
	if !ipv6 {
		ip = ip.Unmap()
	}
	return Addr{ap: netip.AddrPortFrom(ip, port)}, nil
}

// ParseAddr parses "ip:port" or "[ip6]:port".
func ParseAddr(s string) (Addr, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Addr{}, err
	}
	return Addr{ap: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}, nil
}

// AddrFrom wraps an existing endpoint.
func AddrFrom(ap netip.AddrPort) Addr { return Addr{ap: ap} }

func (a Addr) AddrPort() netip.AddrPort { return a.ap }
func (a Addr) IP() netip.Addr           { return a.ap.Addr() }
func (a Addr) Port() uint16             { return a.ap.Port() }
func (a Addr) IsValid() bool            { return a.ap.IsValid() }

// IsIPv6 reports whether the endpoint needs an AF_INET6 socket.
func (a Addr) IsIPv6() bool { return a.ap.Addr().Is6() && !a.ap.Addr().Is4In6() }

// String formats the endpoint as "ip:port".
func (a Addr) String() string { return a.ap.String() }

// TCPAddr converts to the net package form.
func (a Addr) TCPAddr() *net.TCPAddr { return net.TCPAddrFromAddrPort(a.ap) }
