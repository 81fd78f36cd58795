package fpga_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asteralabs/retimerfw/internal/fpga"
	"github.com/asteralabs/retimerfw/internal/image"
)

// Mirrors bridge.go's unexported DPRAM trigger offsets; this package's tests
// live outside the package so they can only see the same addresses dpramIO
// puts on the wire, not the consts themselves.
const (
	offUpdateTrigAddr uint32 = 0x04_0008
	offReadTrigAddr   uint32 = 0x04_000C
)

// fakeBus models the bridge's DPRAM over a dpramIO-style 24-bit in-band
// address header, keyed by the 3-byte address prefix each BlockWrite/
// BlockRead call carries.
type fakeBus struct {
	mu       sync.Mutex
	store    map[uint32]byte
	lastAddr uint32

	updateStatus []byte // consumed one poll response at a time
	readStatus   []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{store: make(map[uint32]byte)}
}

func addrFrom(header []byte) uint32 {
	return uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16
}

func (b *fakeBus) BlockWrite(cmdByte byte, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := addrFrom(payload[:3])
	data := payload[3:]
	if len(data) == 0 {
		b.lastAddr = addr
		return nil
	}
	switch {
	case addr == offUpdateTrigAddr:
		// status-trigger write: one byte, the retimer mask.
		return nil
	case addr == offReadTrigAddr:
		return nil
	default:
		for i, d := range data {
			b.store[addr+uint32(i)] = d
		}
		return nil
	}
}

func (b *fakeBus) BlockRead(cmdByte byte, length int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.lastAddr == offUpdateTrigAddr:
		if len(b.updateStatus) > 0 {
			s := b.updateStatus[0]
			if len(b.updateStatus) > 1 {
				b.updateStatus = b.updateStatus[1:]
			}
			return []byte{s, 0, 0, 0}, nil
		}
		return []byte{0, 0, 0, 0}, nil
	case b.lastAddr == offReadTrigAddr:
		if len(b.readStatus) > 0 {
			s := b.readStatus[0]
			if len(b.readStatus) > 1 {
				b.readStatus = b.readStatus[1:]
			}
			return []byte{s}, nil
		}
		return []byte{0}, nil
	default:
		out := make([]byte, length)
		for i := range out {
			out[i] = b.store[b.lastAddr+uint32(i)]
		}
		return out, nil
	}
}

type fakeReadiness struct {
	ready bool
	err   error
}

func (r fakeReadiness) Ready() (bool, error) { return r.ready, r.err }

func TestWriteRejectsWhenNotReady(t *testing.T) {
	bus := newFakeBus()
	bridge := fpga.NewBridge(bus, fakeReadiness{ready: false}, 2, time.Microsecond, time.Millisecond)

	img := &image.Image{}
	err := bridge.Write(img)
	require.Error(t, err)
}

func TestWriteStagesAndSucceedsOnCleanStatus(t *testing.T) {
	bus := newFakeBus()
	bus.updateStatus = []byte{0} // verification clears immediately
	bridge := fpga.NewBridge(bus, fakeReadiness{ready: true}, 2, time.Microsecond, 10*time.Millisecond)

	img := &image.Image{}
	copy(img.Data[:4], []byte{0x11, 0x22, 0x33, 0x44})
	copy(img.Data[4:], image.Terminator[:])

	err := bridge.Write(img)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), bus.store[0])
	require.Equal(t, byte(0x44), bus.store[3])
}

func TestReadDrainsStagedBytes(t *testing.T) {
	bus := newFakeBus()
	bus.readStatus = []byte{0} // low bit clear immediately
	for i := 0; i < 8; i++ {
		bus.store[uint32(i)] = byte(i + 1)
	}
	bridge := fpga.NewBridge(bus, fakeReadiness{ready: true}, 2, time.Microsecond, 10*time.Millisecond)

	got, err := bridge.Read(0)
	require.NoError(t, err)
	require.Equal(t, byte(1), got[0])
	require.Equal(t, byte(8), got[7])
}

func TestHashReaderProducesSHA384Digest(t *testing.T) {
	bus := newFakeBus()
	bus.readStatus = []byte{0}
	bridge := fpga.NewBridge(bus, fakeReadiness{ready: true}, 2, time.Microsecond, 10*time.Millisecond)
	reader := fpga.NewHashReader(bridge)

	digest, err := reader.Hash(0)
	require.NoError(t, err)
	require.Equal(t, "SHA384", digest.Algorithm)
	require.NotEqual(t, [48]byte{}, digest.Value)
}
