// Package hostaddr parses "host:port" configuration strings into numeric
// IPv4 addresses and ports.
package hostaddr

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAddressFormat is returned when the string does not split into
	// exactly a host part and a port part, or the port is not a 16-bit number.
	ErrInvalidAddressFormat = errors.New("invalid address format")

	// ErrInvalidAddressLiteral is returned when the host part is not an IPv4
	// literal.
	ErrInvalidAddressLiteral = errors.New("invalid address literal")
)

// Address is a resolved IPv4 address and port.
type Address struct {
	IP   [4]byte
	Port uint16
}

// IsWildcard reports whether the address binds all interfaces.
func (a Address) IsWildcard() bool {
	return a.IP == [4]byte{}
}

// String returns the address in "a.b.c.d:port" form.
func (a Address) String() string {
	return netip.AddrPortFrom(netip.AddrFrom4(a.IP), a.Port).String()
}

// Parse converts a "host:port" string into an Address. The host must be an
// IPv4 literal. When allowWildcard is true (server mode), a host of "", "*"
// or "0.0.0.0" is accepted and means "bind all interfaces".
//
// Parameters:
//   - s: The "host:port" string to parse
//   - allowWildcard: Whether a wildcard host is accepted
//
// Returns:
//   - The parsed Address
//   - An error wrapping ErrInvalidAddressFormat or ErrInvalidAddressLiteral
func Parse(s string, allowWildcard bool) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("%w: %q is not host:port", ErrInvalidAddressFormat, s)
	}

	host := strings.TrimSpace(parts[0])
	portStr := strings.TrimSpace(parts[1])

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: port %q in %q", ErrInvalidAddressFormat, portStr, s)
	}

	if allowWildcard && (host == "" || host == "*") {
		return Address{Port: uint16(port)}, nil
	}

	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return Address{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidAddressLiteral, host)
	}

	return Address{IP: ip.As4(), Port: uint16(port)}, nil
}
