package i2cbus_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asteralabs/retimerfw/internal/i2cbus"
)

// fakeBlockDevice is a minimal BlockDevice double for exercising
// ArpAssigner.Resolve's probe-then-reassign-then-reprobe sequencing.
type fakeBlockDevice struct {
	setSlaveCalls int
	lastAddr      uint8
}

func (f *fakeBlockDevice) Open(string) error                   { return nil }
func (f *fakeBlockDevice) BlockWrite(byte, []byte) error        { return nil }
func (f *fakeBlockDevice) BlockRead(byte, int) ([]byte, error)  { return nil, nil }
func (f *fakeBlockDevice) Lock() error                          { return nil }
func (f *fakeBlockDevice) Unlock() error                        { return nil }
func (f *fakeBlockDevice) Close() error                         { return nil }

func (f *fakeBlockDevice) SetSlave(addr uint8) error {
	f.setSlaveCalls++
	f.lastAddr = addr
	return nil
}

func TestResolveSkipsHandshakeWhenProbeSucceeds(t *testing.T) {
	bus := &fakeBlockDevice{}
	assigner := i2cbus.NewArpAssigner("/dev/null", 0, 0)

	ok, err := assigner.Resolve(bus, 0x20, func(i2cbus.BlockDevice) error { return nil })
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, bus.setSlaveCalls)
}

func TestResolveFailsWithoutHandshakeDeviceWhenProbeAlwaysFails(t *testing.T) {
	bus := &fakeBlockDevice{}
	// /dev/null is not a UART; the handshake open will fail, which Resolve
	// must surface as an error rather than silently treating as resolved.
	assigner := i2cbus.NewArpAssigner("/dev/null", 0, 0)

	ok, err := assigner.Resolve(bus, 0x20, func(i2cbus.BlockDevice) error { return errors.New("no ack") })
	require.Error(t, err)
	require.False(t, ok)
}
