package tunbench

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// fakePacketSource returns the given packets and then blocks until closed.
type fakePacketSource struct {
	closed    chan any
	closeOnce sync.Once
	mu        sync.Mutex
	packets   [][]byte
}

func newFakePacketSource(packets ...[]byte) *fakePacketSource {
	return &fakePacketSource{closed: make(chan any), packets: packets}
}

func (fps *fakePacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	fps.mu.Lock()
	if len(fps.packets) > 0 {
		data := fps.packets[0]
		fps.packets = fps.packets[1:]
		fps.mu.Unlock()
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data), Length: len(data)}
		return data, ci, nil
	}
	fps.mu.Unlock()
	<-fps.closed
	return nil, gopacket.CaptureInfo{}, io.EOF
}

func (fps *fakePacketSource) Close() {
	fps.closeOnce.Do(func() { close(fps.closed) })
}

func (fps *fakePacketSource) Pending() int {
	defer fps.mu.Unlock()
	fps.mu.Lock()
	return len(fps.packets)
}

func TestPCAPDumper(t *testing.T) {
	l2tp := serializeFrame(t, layers.EthernetTypeIPv4, ipv4Layer(layers.IPProtocolUDP),
		&layers.UDP{SrcPort: L2TPPort, DstPort: L2TPPort}, gopacket.Payload(make([]byte, 18)))
	large := make([]byte, 1500)
	source := newFakePacketSource(l2tp, large, l2tp)
	filename := filepath.Join(t.TempDir(), "capture.pcap")

	dumper := NewPCAPDumper(filename, source, &NullLogger{})
	for source.Pending() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if err := dumper.Close(); err != nil {
		t.Fatal(err)
	}
	stats := dumper.Stats()
	if stats[TrafficL2TP] != 2 || stats[TrafficOther] != 1 {
		t.Fatal("unexpected stats", stats)
	}
	// closing twice is fine
	if err := dumper.Close(); err != nil {
		t.Fatal(err)
	}

	filep, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer filep.Close()
	reader, err := pcapgo.NewReader(filep)
	if err != nil {
		t.Fatal(err)
	}
	if reader.LinkType() != layers.LinkTypeEthernet {
		t.Fatal("unexpected link type", reader.LinkType())
	}
	var lengths []int
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if len(data) > pcapSnapLen {
			t.Fatal("snapshot too large", len(data))
		}
		lengths = append(lengths, ci.Length)
	}
	if len(lengths) != 3 || lengths[1] != 1500 {
		t.Fatal("unexpected packets", lengths)
	}
}
