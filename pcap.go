package tunbench

//
// PCAP dumper
//

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPDumper reads packets from a [PacketSource] and stores them into
// a PCAP file. The zero value is invalid; use [NewPCAPDumper].
type PCAPDumper struct {
	// cancel stops the background goroutines.
	cancel context.CancelFunc

	// closeOnce provides "once" semantics for close.
	closeOnce sync.Once

	// joined is closed when the writer goroutine has terminated
	joined chan any

	// logger is the logger to use.
	logger Logger

	// mu protects stats.
	mu sync.Mutex

	// pic is the channel where we post packets to capture
	pic chan *pcapDumperPacketInfo

	// source is where we read packets from
	source PacketSource

	// stats counts the written packets by traffic class.
	stats map[TrafficClass]int64
}

// pcapDumperPacketInfo contains info about a packet.
type pcapDumperPacketInfo struct {
	ci       gopacket.CaptureInfo
	snapshot []byte
}

// pcapSnapLen is the maximum number of bytes of each packet we save.
const pcapSnapLen = 256

// NewPCAPDumper starts capturing from source into the given file. This
// function creates background goroutines for reading and writing. To
// join the writer, call [PCAPDumper.Close]. The dumper TAKES OWNERSHIP
// of the source and closes it when done.
func NewPCAPDumper(filename string, source PacketSource, logger Logger) *PCAPDumper {
	const manyPackets = 4096
	ctx, cancel := context.WithCancel(context.Background())
	pd := &PCAPDumper{
		cancel:    cancel,
		closeOnce: sync.Once{},
		joined:    make(chan any),
		logger:    logger,
		mu:        sync.Mutex{},
		pic:       make(chan *pcapDumperPacketInfo, manyPackets),
		source:    source,
		stats:     map[TrafficClass]int64{},
	}
	go pd.readLoop(ctx)
	go pd.writeLoop(ctx, filename)
	return pd
}

// readLoop reads packets from the source until it fails.
func (pd *PCAPDumper) readLoop(ctx context.Context) {
	for {
		data, ci, err := pd.source.ReadPacketData()
		if err != nil {
			if ctx.Err() == nil && err != io.EOF {
				pd.logger.Warnf("tunbench: PCAPDumper: ReadPacketData: %s", err.Error())
			}
			return
		}
		pd.deliverPacketInfo(data, ci)
	}
}

// deliverPacketInfo delivers packet info to the background writer.
func (pd *PCAPDumper) deliverPacketInfo(packet []byte, ci gopacket.CaptureInfo) {
	// make sure the capture length makes sense
	captureLength := pcapSnapLen
	if len(packet) < captureLength {
		captureLength = len(packet)
	}
	if ci.Length < len(packet) {
		ci.Length = len(packet)
	}
	ci.CaptureLength = captureLength

	// actually deliver the packet info
	pinfo := &pcapDumperPacketInfo{
		ci:       ci,
		snapshot: append([]byte{}, packet[:captureLength]...), // duplicate
	}
	select {
	case pd.pic <- pinfo:
	default:
		// just drop from the capture
	}
}

// writeLoop is the loop that writes pcaps
func (pd *PCAPDumper) writeLoop(ctx context.Context, filename string) {
	// synchronize with parent
	defer close(pd.joined)

	// open the file where to create the pcap
	filep, err := os.Create(filename)
	if err != nil {
		pd.logger.Warnf("tunbench: PCAPDumper: os.Create: %s", err.Error())
		return
	}
	defer func() {
		if err := filep.Close(); err != nil {
			pd.logger.Warnf("tunbench: PCAPDumper: filep.Close: %s", err.Error())
			// fallthrough
		}
	}()

	// write the PCAP header
	w := pcapgo.NewWriter(filep)
	if err := w.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet); err != nil {
		pd.logger.Warnf("tunbench: PCAPDumper: WriteFileHeader: %s", err.Error())
		return
	}

	// loop until we're done and write each entry
	for {
		select {
		case <-ctx.Done():
			pd.drain(w)
			return
		case pinfo := <-pd.pic:
			pd.doWritePCAPEntry(pinfo, w)
		}
	}
}

// drain writes the packets still queued when we're asked to stop.
func (pd *PCAPDumper) drain(w *pcapgo.Writer) {
	for {
		select {
		case pinfo := <-pd.pic:
			pd.doWritePCAPEntry(pinfo, w)
		default:
			return
		}
	}
}

// doWritePCAPEntry writes the given packet entry into the PCAP file.
func (pd *PCAPDumper) doWritePCAPEntry(pinfo *pcapDumperPacketInfo, w *pcapgo.Writer) {
	if err := w.WritePacket(pinfo.ci, pinfo.snapshot); err != nil {
		pd.logger.Warnf("tunbench: w.WritePacket: %s", err.Error())
		// fallthrough
	}
	class := ClassifyFrame(pinfo.snapshot)
	pd.mu.Lock()
	pd.stats[class]++
	pd.mu.Unlock()
}

// Stats returns the number of captured packets by traffic class.
func (pd *PCAPDumper) Stats() map[TrafficClass]int64 {
	defer pd.mu.Unlock()
	pd.mu.Lock()
	out := map[TrafficClass]int64{}
	for class, count := range pd.stats {
		out[class] = count
	}
	return out
}

// Close stops capturing and waits for the writer to finish.
func (pd *PCAPDumper) Close() error {
	pd.closeOnce.Do(func() {
		// notify the background goroutines to terminate
		pd.cancel()
		pd.source.Close()

		// wait until the channel is drained
		pd.logger.Debugf("tunbench: PCAPDumper: awaiting for background writer to finish writing")
		<-pd.joined
	})
	return nil
}
