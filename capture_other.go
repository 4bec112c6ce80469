//go:build !linux

package tunbench

import "errors"

// ErrCaptureNotSupported indicates that we cannot capture on this system.
var ErrCaptureNotSupported = errors.New("tunbench: packet capture requires linux")

// openEthernetCapture opens an AF_PACKET capture on the given device.
func openEthernetCapture(device string) (PacketSource, error) {
	return nil, ErrCaptureNotSupported
}
