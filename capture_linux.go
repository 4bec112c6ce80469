//go:build linux

package tunbench

import "github.com/google/gopacket/pcapgo"

// openEthernetCapture opens an AF_PACKET capture on the given device.
func openEthernetCapture(device string) (PacketSource, error) {
	handle, err := pcapgo.NewEthernetHandle(device)
	if err != nil {
		return nil, err
	}
	return handle, nil
}
