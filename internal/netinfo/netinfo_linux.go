//go:build linux

package netinfo

import (
	"fmt"
	"net"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/vishvananda/netlink"
)

// LocalIPv4 reads the address of iface over netlink.
func LocalIPv4(iface string) (address.IPv4, error) {
	link, err := resolveLink(iface)
	if err != nil {
		return address.IPv4{}, err
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return address.IPv4{}, fmt.Errorf("failed to list addresses of %s: %w", link.Attrs().Name, err)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet != nil {
			ips = append(ips, a.IP)
		}
	}
	return pickIPv4(link.Attrs().Name, ips)
}

func resolveLink(iface string) (netlink.Link, error) {
	if iface != "" {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return nil, fmt.Errorf("failed to find interface %s: %w", iface, err)
		}
		return link, nil
	}

	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	for _, route := range routes {
		if !isDefaultRoute(route) || route.LinkIndex == 0 {
			continue
		}
		link, err := netlink.LinkByIndex(route.LinkIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to find default route link: %w", err)
		}
		return link, nil
	}
	return nil, fmt.Errorf("%w: no default route", ErrNoAddress)
}

// isDefaultRoute matches both a nil destination and an explicit 0.0.0.0/0.
func isDefaultRoute(route netlink.Route) bool {
	if route.Dst == nil {
		return true
	}
	ones, _ := route.Dst.Mask.Size()
	return ones == 0 && route.Dst.IP.Equal(net.IPv4zero)
}
