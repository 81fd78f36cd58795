package device_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asteralabs/retimerfw/internal/device"
)

type fakeMicroReader struct {
	bytes map[uint32]byte
}

func (f fakeMicroReader) ReadByte(offset uint32) (byte, error) {
	return f.bytes[offset], nil
}

// fakeHeartbeatRegister plays back a fixed sequence of heartbeat-register
// reads, repeating its last value once exhausted, so a test can simulate
// either a changing (alive) or constant (silent) main micro.
type fakeHeartbeatRegister struct {
	values []byte
	calls  int
}

func (f *fakeHeartbeatRegister) ReadBytes(reg uint32, n int) ([]byte, error) {
	idx := f.calls
	if idx >= len(f.values) {
		idx = len(f.values) - 1
	}
	f.calls++
	return []byte{f.values[idx]}, nil
}

func (f *fakeHeartbeatRegister) WriteBytes(reg uint32, data []byte) error { return nil }

func TestInitDerivesVersionAndFeatures(t *testing.T) {
	reader := fakeMicroReader{bytes: map[uint32]byte{
		0x00: 1,  // major
		0x01: 1,  // minor
		0x02: 60, // build low
		0x03: 0,  // build high
		0x04: 1,  // codeLoad
	}}
	heartbeat := &fakeHeartbeatRegister{values: []byte{0x01, 0x01, 0x02}}

	dev := &device.Device{Address: 0x20, AddressResolved: true}
	err := dev.Init(heartbeat, reader)
	require.NoError(t, err)
	require.Equal(t, device.FirmwareVersion{Major: 1, Minor: 1, Build: 60}, dev.Version)
	require.True(t, dev.Features.Has(device.FeatureHeartbeat))
	require.True(t, dev.Features.Has(device.FeatureAssistedEeprom))
	require.True(t, dev.CodeLoadComplete)
	require.False(t, dev.RequiresLegacyMode())
}

func TestInitNoHeartbeatStaysLegacy(t *testing.T) {
	reader := fakeMicroReader{bytes: map[uint32]byte{}}
	heartbeat := &fakeHeartbeatRegister{values: []byte{0x03}}

	dev := &device.Device{Address: 0x20, AddressResolved: true}
	err := dev.Init(heartbeat, reader)
	require.NoError(t, err)
	require.True(t, dev.Version.IsZero())
	require.True(t, dev.RequiresLegacyMode())
}

func TestInitHeartbeatChangingOnlyOnFinalTryStillCountsAsAlive(t *testing.T) {
	// Mirrors aries_api.c's 100-try budget: the heartbeat register must be
	// read at least once more than it's constant for, so the sequence here
	// holds steady for 100 reads (the initial baseline plus 99 retries) and
	// only changes on the 100th retry.
	const heartbeatAttempts = 100
	values := make([]byte, 0, heartbeatAttempts+1)
	for i := 0; i < heartbeatAttempts; i++ {
		values = append(values, 0x05)
	}
	values = append(values, 0x09)
	reader := fakeMicroReader{bytes: map[uint32]byte{0x00: 2, 0x01: 0}}
	heartbeat := &fakeHeartbeatRegister{values: values}

	dev := &device.Device{Address: 0x20, AddressResolved: true}
	err := dev.Init(heartbeat, reader)
	require.NoError(t, err)
	require.True(t, dev.Features.Has(device.FeatureHeartbeat))
}
