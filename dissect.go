package tunbench

//
// Tunnel traffic dissector
//

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// TrafficClass is the class of a captured frame.
type TrafficClass string

// Traffic classes we distinguish in captures.
const (
	TrafficL2TP        = TrafficClass("l2tp")
	TrafficPPTPControl = TrafficClass("pptp-control")
	TrafficGRE         = TrafficClass("gre")
	TrafficOther       = TrafficClass("other")
)

// Well-known ports of the tunnel protocols.
const (
	L2TPPort        = 1701
	PPTPControlPort = 1723
)

// DissectedFrame is a dissected ethernet frame. The zero-value is
// invalid; you MUST use [DissectFrame] to create a new instance.
type DissectedFrame struct {
	// Packet is the underlying packet.
	Packet gopacket.Packet

	// IP is the network layer (either IPv4 or IPv6).
	IP gopacket.NetworkLayer

	// TCP is the POSSIBLY NIL TCP layer.
	TCP *layers.TCP

	// UDP is the POSSIBLY NIL UDP layer.
	UDP *layers.UDP
}

// ErrDissectShortPacket indicates the frame is too short.
var ErrDissectShortPacket = errors.New("tunbench: dissect: frame too short")

// ErrDissectNetwork indicates that we do not support the frame's network protocol.
var ErrDissectNetwork = errors.New("tunbench: dissect: unsupported network protocol")

// DissectFrame parses the layers of an ethernet frame.
func DissectFrame(frame []byte) (*DissectedFrame, error) {
	// a frame shorter than the ethernet header is useless
	if len(frame) < 14 {
		return nil, ErrDissectShortPacket
	}
	df := &DissectedFrame{
		Packet: gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Lazy),
	}

	switch {
	case df.Packet.Layer(layers.LayerTypeIPv4) != nil:
		df.IP = df.Packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	case df.Packet.Layer(layers.LayerTypeIPv6) != nil:
		df.IP = df.Packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	default:
		return nil, ErrDissectNetwork
	}

	if layer := df.Packet.Layer(layers.LayerTypeTCP); layer != nil {
		df.TCP = layer.(*layers.TCP)
	}
	if layer := df.Packet.Layer(layers.LayerTypeUDP); layer != nil {
		df.UDP = layer.(*layers.UDP)
	}
	return df, nil
}

// TransportProtocol returns the frame's transport protocol.
func (df *DissectedFrame) TransportProtocol() layers.IPProtocol {
	switch v := df.IP.(type) {
	case *layers.IPv4:
		return v.Protocol
	case *layers.IPv6:
		return v.NextHeader
	default:
		panic(ErrDissectNetwork)
	}
}

// SourceIPAddress returns the frame's source IP address.
func (df *DissectedFrame) SourceIPAddress() string {
	switch v := df.IP.(type) {
	case *layers.IPv4:
		return v.SrcIP.String()
	case *layers.IPv6:
		return v.SrcIP.String()
	default:
		panic(ErrDissectNetwork)
	}
}

// DestinationIPAddress returns the frame's destination IP address.
func (df *DissectedFrame) DestinationIPAddress() string {
	switch v := df.IP.(type) {
	case *layers.IPv4:
		return v.DstIP.String()
	case *layers.IPv6:
		return v.DstIP.String()
	default:
		panic(ErrDissectNetwork)
	}
}

// Classify returns the tunnel traffic class of the frame.
func (df *DissectedFrame) Classify() TrafficClass {
	switch {
	case df.TransportProtocol() == layers.IPProtocolGRE:
		return TrafficGRE
	case df.UDP != nil && (df.UDP.SrcPort == L2TPPort || df.UDP.DstPort == L2TPPort):
		return TrafficL2TP
	case df.TCP != nil && (df.TCP.SrcPort == PPTPControlPort || df.TCP.DstPort == PPTPControlPort):
		return TrafficPPTPControl
	default:
		return TrafficOther
	}
}

// ClassifyFrame dissects and classifies a frame. Frames we cannot
// dissect count as [TrafficOther].
func ClassifyFrame(frame []byte) TrafficClass {
	df, err := DissectFrame(frame)
	if err != nil {
		return TrafficOther
	}
	return df.Classify()
}
