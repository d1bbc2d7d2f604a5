package wake

import (
	"fmt"
	"strings"

	"github.com/fgeck/gowol-homelab/internal/address"
)

// ParamSeparator splits the wakeHost argument into IPv4 and MAC.
const ParamSeparator = ";"

// ParseWakeParameter parses "<ipv4>;<mac>". Exactly one separator is allowed.
func ParseWakeParameter(param string, mode address.Mode) (WakeCommand, error) {
	var cmd WakeCommand

	if param == "" {
		return cmd, fmt.Errorf("%w: empty wake parameter", address.ErrInvalidFormat)
	}
	if n := strings.Count(param, ParamSeparator); n != 1 {
		return cmd, fmt.Errorf("%w: wake parameter needs exactly one %q, found %d", address.ErrInvalidFormat, ParamSeparator, n)
	}

	ipText, macText, _ := strings.Cut(param, ParamSeparator)

	target, err := address.ParseIPv4(ipText, mode)
	if err != nil {
		return cmd, err
	}
	mac, err := address.ParseMAC(macText, mode)
	if err != nil {
		return cmd, err
	}

	return WakeCommand{Target: target, MAC: mac}, nil
}

// ParsePingParameter parses a bare IPv4 address.
func ParsePingParameter(param string, mode address.Mode) (PingCommand, error) {
	if param == "" {
		return PingCommand{}, fmt.Errorf("%w: empty ping parameter", address.ErrInvalidFormat)
	}
	target, err := address.ParseIPv4(param, mode)
	if err != nil {
		return PingCommand{}, err
	}
	return PingCommand{Target: target}, nil
}
