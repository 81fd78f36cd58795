package pma_test

import (
	"testing"
	"time"

	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/micro"
	"github.com/asteralabs/retimerfw/internal/pma"
	"github.com/asteralabs/retimerfw/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeBus is a register-file-backed i2cbus.BlockDevice double, keyed by the
// low byte of the register transport frames onto the wire.
type fakeBus struct {
	regs map[byte][]byte
}

func newFakeBus() *fakeBus { return &fakeBus{regs: make(map[byte][]byte)} }

func (f *fakeBus) Open(string) error    { return nil }
func (f *fakeBus) SetSlave(uint8) error { return nil }
func (f *fakeBus) Close() error         { return nil }
func (f *fakeBus) Lock() error          { return nil }
func (f *fakeBus) Unlock() error        { return nil }

func (f *fakeBus) BlockWrite(cmdByte byte, payload []byte) error {
	f.regs[cmdByte] = append([]byte{}, payload...)
	return nil
}

func (f *fakeBus) BlockRead(cmdByte byte, length int) ([]byte, error) {
	data := f.regs[cmdByte]
	if len(data) < length {
		padded := make([]byte, length)
		copy(padded, data)
		return padded, nil
	}
	return data[:length], nil
}

func TestDirectReadWriteRoundTrips(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())

	d := pma.NewDirect(tr)
	require.NoError(t, d.Write(3, 0x10, 0xBEEF))
	got, err := d.Read(3, 0x10)
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), got)
}

func TestSelectPicksDirectWithoutHeartbeat(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())
	m := micro.NewDriver(tr, 3, time.Microsecond)

	dev := &device.Device{Features: 0}
	accessor := pma.Select(dev, tr, m)
	_, ok := accessor.(*pma.Direct)
	require.True(t, ok)
}

func TestSelectPicksMicroAssistedWithHeartbeat(t *testing.T) {
	bus := newFakeBus()
	tr := transport.New(bus, 0x20, transport.FramingShort, false)
	require.NoError(t, tr.Init())
	m := micro.NewDriver(tr, 3, time.Microsecond)

	dev := &device.Device{Features: device.FeatureHeartbeat}
	accessor := pma.Select(dev, tr, m)
	_, ok := accessor.(*pma.MicroAssisted)
	require.True(t, ok)
}
