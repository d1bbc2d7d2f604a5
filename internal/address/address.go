// Package address parses and formats the hardware and network addresses used by wake requests.
package address

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned for malformed MAC or IPv4 text.
var ErrInvalidFormat = errors.New("invalid address format")

// Mode selects how forgiving the parsers are.
type Mode int

const (
	// ModeStrict rejects any malformed input.
	ModeStrict Mode = iota
	// ModeLenient mirrors legacy firmware: bad hex digits and non-numeric octets become zero.
	ModeLenient
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == ModeLenient {
		return "lenient"
	}
	return "strict"
}

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ModeStrict, nil
	case "lenient":
		return ModeLenient, nil
	default:
		return ModeStrict, fmt.Errorf("unknown parse mode %q: must be strict or lenient", s)
	}
}

const macTextLength = 17

// MAC is a 6-byte hardware address.
type MAC [6]byte

// HardwareAddr returns the address as a net.HardwareAddr.
func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m[:])
}

// String formats the address as upper-case colon separated hex.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// ParseMAC parses text of the form XX:XX:XX:XX:XX:XX. Any single separator
// character may be used, but strict mode requires the same one throughout.
func ParseMAC(text string, mode Mode) (MAC, error) {
	var mac MAC

	if len(text) != macTextLength {
		return mac, fmt.Errorf("%w: MAC %q must be %d characters", ErrInvalidFormat, text, macTextLength)
	}

	if mode == ModeStrict {
		sep := text[2]
		if isHex(sep) {
			return mac, fmt.Errorf("%w: MAC %q has no separator", ErrInvalidFormat, text)
		}
		for i := 5; i < macTextLength; i += 3 {
			if text[i] != sep {
				return mac, fmt.Errorf("%w: MAC %q mixes separators", ErrInvalidFormat, text)
			}
		}
	}

	for i := range mac {
		hi, okHi := nibble(text[i*3])
		lo, okLo := nibble(text[i*3+1])
		if (!okHi || !okLo) && mode == ModeStrict {
			return mac, fmt.Errorf("%w: MAC %q has invalid hex in group %d", ErrInvalidFormat, text, i+1)
		}
		mac[i] = hi<<4 | lo
	}

	return mac, nil
}

// nibble decodes one hex digit. Invalid digits decode to 0.
func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isHex(c byte) bool {
	_, ok := nibble(c)
	return ok
}

// IPv4 is a 4-byte network address.
type IPv4 [4]byte

// IP returns the address as a net.IP.
func (a IPv4) IP() net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3])
}

// IsZero reports whether the address is 0.0.0.0.
func (a IPv4) IsZero() bool {
	return a == IPv4{}
}

// String formats the address as canonical dotted decimal.
func (a IPv4) String() string {
	var b strings.Builder
	for i, octet := range a {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(int(octet)))
	}
	return b.String()
}

// FromIP converts a net.IP holding an IPv4 address.
func FromIP(ip net.IP) (IPv4, bool) {
	var a IPv4
	v4 := ip.To4()
	if v4 == nil {
		return a, false
	}
	copy(a[:], v4)
	return a, true
}

// ParseIPv4 parses dotted decimal text. Input with fewer than three dots is
// rejected in both modes. Lenient mode ignores anything after a fourth dot and
// reads each octet from its leading digits, defaulting to 0.
func ParseIPv4(text string, mode Mode) (IPv4, error) {
	var addr IPv4

	segments := strings.Split(text, ".")
	if len(segments) < 4 {
		return addr, fmt.Errorf("%w: IPv4 %q needs 4 octets", ErrInvalidFormat, text)
	}
	if len(segments) > 4 {
		if mode == ModeStrict {
			return addr, fmt.Errorf("%w: IPv4 %q has more than 4 octets", ErrInvalidFormat, text)
		}
		segments = segments[:4]
	}

	for i, seg := range segments {
		value, err := parseOctet(seg, mode)
		if err != nil {
			return addr, fmt.Errorf("%w: IPv4 %q octet %d: %v", ErrInvalidFormat, text, i+1, err)
		}
		addr[i] = value
	}

	return addr, nil
}

func parseOctet(seg string, mode Mode) (byte, error) {
	digits := seg
	if mode == ModeLenient {
		end := 0
		for end < len(seg) && seg[end] >= '0' && seg[end] <= '9' {
			end++
		}
		digits = seg[:end]
		if digits == "" {
			return 0, nil
		}
	} else if digits == "" || len(digits) > 3 || strings.Trim(digits, "0123456789") != "" {
		return 0, fmt.Errorf("expected 1-3 digits, got %q", seg)
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", seg)
	}
	if n > 255 {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return byte(n), nil
}
