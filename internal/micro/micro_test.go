package micro_test

import (
	"testing"
	"time"

	"github.com/asteralabs/retimerfw/internal/micro"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
	"github.com/asteralabs/retimerfw/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeBus is a minimal i2cbus.BlockDevice double that models one micro
// command/address/data window: writes to the command register self-clear to
// 0 on the read after clearAfter reads, or never clear when clearAfter < 0.
type fakeBus struct {
	regs       map[uint32][]byte // keyed by low byte of register, as transport frames it
	readsSince map[byte]int
	clearAfter int
}

func newFakeBus(clearAfter int) *fakeBus {
	return &fakeBus{regs: make(map[uint32][]byte), readsSince: make(map[byte]int), clearAfter: clearAfter}
}

func (f *fakeBus) Open(string) error    { return nil }
func (f *fakeBus) SetSlave(uint8) error { return nil }
func (f *fakeBus) Close() error         { return nil }
func (f *fakeBus) Lock() error          { return nil }
func (f *fakeBus) Unlock() error        { return nil }

func (f *fakeBus) BlockWrite(cmdByte byte, payload []byte) error {
	f.regs[uint32(cmdByte)] = append([]byte{}, payload...)
	return nil
}

func (f *fakeBus) BlockRead(cmdByte byte, length int) ([]byte, error) {
	if cmdByte == 0x04 { // command register low byte for MainWindow(0x700)
		f.readsSince[cmdByte]++
		if f.clearAfter >= 0 && f.readsSince[cmdByte] > f.clearAfter {
			return []byte{0x00}, nil
		}
		return []byte{0x01}, nil
	}
	data := f.regs[uint32(cmdByte)]
	if len(data) < length {
		padded := make([]byte, length)
		copy(padded, data)
		return padded, nil
	}
	return data[:length], nil
}

func newDriver(bus *fakeBus, framing transport.Framing) *micro.Driver {
	tr := transport.New(bus, 0x20, framing, false)
	_ = tr.Init()
	return micro.NewDriver(tr, 3, time.Microsecond)
}

func TestWriteByteThenReadByteRoundTrips(t *testing.T) {
	bus := newFakeBus(0)
	d := newDriver(bus, transport.FramingShort)
	w := micro.MainWindow(0x700)

	require.NoError(t, d.WriteByte(w, 0, 0x5A))
	got, err := d.ReadByte(w, 0)
	require.NoError(t, err)
	require.Equal(t, byte(0x5A), got)
}

func TestReadBlockReturnsMicroBusyAfterPollBudget(t *testing.T) {
	bus := newFakeBus(-1) // never clears
	d := newDriver(bus, transport.FramingShort)
	w := micro.MainWindow(0x700)

	_, err := d.ReadBlock(w, 0, 4)
	require.Error(t, err)
	var busy *retimerfwerr.MicroBusyError
	require.ErrorAs(t, err, &busy)
}

func TestPathWindowOffsetsByStride(t *testing.T) {
	w0 := micro.PathWindow(0x800, 0)
	w1 := micro.PathWindow(0x800, 1)
	require.NotEqual(t, w0.AddressReg, w1.AddressReg)
	require.Equal(t, w0.AddressReg+0x40, w1.AddressReg)
}
