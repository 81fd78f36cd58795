package transport_test

import (
	"sync"
	"testing"

	"github.com/asteralabs/retimerfw/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeBus implements i2cbus.BlockDevice for transport-level tests, mirroring
// the teacher's locally-defined mock style (core_engine/devices/ne2000_test.go).
type fakeBus struct {
	mu sync.Mutex

	slave  uint8
	writes []fakeWrite
	reads  map[byte][]byte

	lockCalls   int
	unlockCalls int
}

type fakeWrite struct {
	cmd     byte
	payload []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{reads: make(map[byte][]byte)}
}

func (f *fakeBus) Open(path string) error { return nil }

func (f *fakeBus) SetSlave(addr uint8) error {
	f.slave = addr
	return nil
}

func (f *fakeBus) BlockWrite(cmdByte byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte{}, payload...)
	f.writes = append(f.writes, fakeWrite{cmd: cmdByte, payload: cp})
	return nil
}

func (f *fakeBus) BlockRead(cmdByte byte, length int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.reads[cmdByte]
	if !ok {
		data = make([]byte, length)
	}
	if len(data) > length {
		data = data[:length]
	}
	return data, nil
}

func (f *fakeBus) Lock() error {
	f.lockCalls++
	return nil
}

func (f *fakeBus) Unlock() error {
	f.unlockCalls++
	return nil
}

func (f *fakeBus) Close() error { return nil }

func TestWriteBytesShortFramingStagesExtendedCmd(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())

	require.NoError(t, tr.WriteBytes(0x1234, []byte{0xAA, 0xBB}))

	require.Len(t, bus.writes, 2)
	require.Equal(t, byte(0x01), bus.writes[0].cmd) // extended-command register
	require.Equal(t, byte(0x34), bus.writes[1].cmd)  // low byte of register rides the command
}

func TestWriteBytesRejectsOversizeRegister(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())

	err := tr.WriteBytes(0x20000, []byte{0x01})
	require.Error(t, err)
}

func TestWriteBytesRejectsOverlongPayload(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())

	err := tr.WriteBytes(0x10, make([]byte, 17))
	require.Error(t, err)
}

func TestWriteBytesLongFramingAppendsPECWhenEnabled(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingLong, true)
	require.NoError(t, tr.Init())

	require.NoError(t, tr.WriteBytes(0x10, []byte{0x01, 0x02}))
	require.Len(t, bus.writes, 1)
	// header(3) + data(2) + pec(1)
	require.Len(t, bus.writes[0].payload, 6)
}

func TestLockUnlockDelegateToBus(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Lock())
	require.NoError(t, tr.Unlock())
	require.Equal(t, 1, bus.lockCalls)
	require.Equal(t, 1, bus.unlockCalls)
}

func TestReadByteNoLockDoesNotTakeBusLock(t *testing.T) {
	bus := newFakeBus()
	bus.reads[0x10] = []byte{0x42}
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())

	b, err := tr.ReadByteNoLock(0x10)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b)
	require.Equal(t, 0, bus.lockCalls)
}
