package wol

import (
	"bytes"
	"fmt"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/mdlayher/wol"
)

// Magic packet layout.
const (
	HeaderLength = 6
	MACRepeat    = 16
	PacketLength = HeaderLength + MACRepeat*len(address.MAC{})
)

// Packet is a Wake-on-LAN magic packet: 6 bytes of 0xFF followed by the
// target MAC repeated 16 times.
type Packet [PacketLength]byte

// Build assembles the magic packet for mac.
func Build(mac address.MAC) Packet {
	var p Packet
	for i := 0; i < HeaderLength; i++ {
		p[i] = 0xFF
	}
	for i := 0; i < MACRepeat; i++ {
		copy(p[HeaderLength+i*len(mac):], mac[:])
	}
	return p
}

// Bytes returns the packet as a slice for writing to the wire.
func (p Packet) Bytes() []byte {
	return p[:]
}

// Decode validates a received payload and returns the MAC it targets.
// SecureOn passwords trailing the MAC repetitions are accepted and ignored.
func Decode(b []byte) (address.MAC, error) {
	var mac address.MAC

	var mp wol.MagicPacket
	if err := mp.UnmarshalBinary(b); err != nil {
		return mac, fmt.Errorf("invalid magic packet: %w", err)
	}
	if len(mp.Target) != len(mac) {
		return mac, fmt.Errorf("invalid magic packet: target is %d bytes", len(mp.Target))
	}

	copy(mac[:], mp.Target)
	if !bytes.Equal(b[HeaderLength:PacketLength], bytes.Repeat(mac[:], MACRepeat)) {
		return mac, fmt.Errorf("invalid magic packet: target %s is not repeated %d times", mac, MACRepeat)
	}
	return mac, nil
}
