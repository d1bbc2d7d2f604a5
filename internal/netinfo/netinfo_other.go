//go:build !linux

package netinfo

import (
	"fmt"
	"net"

	"github.com/fgeck/gowol-homelab/internal/address"
)

// LocalIPv4 reads the address of iface from the interface table. An empty
// iface selects the first interface that is up and has an address.
func LocalIPv4(iface string) (address.IPv4, error) {
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return address.IPv4{}, fmt.Errorf("failed to find interface %s: %w", iface, err)
		}
		return interfaceIPv4(*ifi)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return address.IPv4{}, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if ip, err := interfaceIPv4(ifi); err == nil {
			return ip, nil
		}
	}
	return address.IPv4{}, ErrNoAddress
}

func interfaceIPv4(ifi net.Interface) (address.IPv4, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return address.IPv4{}, fmt.Errorf("failed to list addresses of %s: %w", ifi.Name, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipNet.IP)
		}
	}
	return pickIPv4(ifi.Name, ips)
}
