// Package netdev connects an enc28j60.Driver to the host network stack.
package netdev

import "errors"

// ErrNotSupported is returned where TAP devices are unavailable
var ErrNotSupported = errors.New("netdev: TAP devices not supported on this platform")

// HostInterface is the host side of the bridge: one Ethernet frame per call
type HostInterface interface {
	ReadPacket() ([]byte, error)
	WritePacket(frame []byte) error
	Close() error
}

// maxHostFrame covers the largest Ethernet frame plus a VLAN tag
const maxHostFrame = 1522
