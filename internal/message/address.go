package message

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the protocol port of a motion node.
const DefaultPort = 6969

// Address locates a motion node.
type Address struct {
	Host string `cbor:"host" json:"host"`
	Port int    `cbor:"port" json:"port"`
}

// ParseAddress parses "host[:port]". The port defaults to DefaultPort.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port: a bare host or a bare IPv6 literal.
		host = strings.Trim(s, "[]")
		if strings.ContainsAny(host, "[]") {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		return Address{Host: host, Port: DefaultPort}, nil
	}
	if host == "" {
		return Address{}, fmt.Errorf("%w: %q has no host", ErrInvalidAddress, s)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Address{}, fmt.Errorf("%w: %q has an invalid port", ErrInvalidAddress, s)
	}
	return Address{Host: host, Port: port}, nil
}

// String returns "host:port".
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}
