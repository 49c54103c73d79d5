// Package beacon encodes the discovery datagram: a fixed ASCII prefix
// followed by the decimal control-channel port.
package beacon

import (
	"bytes"
	"net"
	"strconv"
)

// Prefix starts every discovery datagram.
const Prefix = "Kristine Server Discovery:"

// Encode builds the datagram advertising port.
func Encode(port int) []byte {
	return []byte(Prefix + strconv.Itoa(port))
}

// Decode extracts the advertised port. ok is false unless payload starts
// with Prefix and the remainder is a positive decimal integer.
func Decode(payload []byte) (port int, ok bool) {
	if !bytes.HasPrefix(payload, []byte(Prefix)) {
		return 0, false
	}
	suffix := string(payload[len(Prefix):])
	if suffix == "" || suffix[0] == '+' || suffix[0] == '-' {
		return 0, false
	}
	p, err := strconv.Atoi(suffix)
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}

// Rejected reports sender addresses that can never be a real peer.
func Rejected(ip net.IP) bool {
	return ip == nil || ip.IsUnspecified() || ip.Equal(net.IPv4bcast)
}
