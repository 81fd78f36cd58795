package device_test

import (
	"testing"

	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
	"github.com/stretchr/testify/require"
)

func TestDeriveFeaturesZeroVersionHasNoHeartbeat(t *testing.T) {
	f := device.DeriveFeatures(device.FirmwareVersion{})
	require.False(t, f.Has(device.FeatureHeartbeat))
	require.False(t, f.Has(device.FeatureAssistedEeprom))
}

func TestDeriveFeaturesAssistedEepromByMinorVersion(t *testing.T) {
	f := device.DeriveFeatures(device.FirmwareVersion{Major: 1, Minor: 1, Build: 0})
	require.True(t, f.Has(device.FeatureHeartbeat))
	require.True(t, f.Has(device.FeatureAssistedEeprom))
}

func TestDeriveFeaturesAssistedEepromByBuildNumber(t *testing.T) {
	f := device.DeriveFeatures(device.FirmwareVersion{Major: 1, Minor: 0, Build: 48})
	require.True(t, f.Has(device.FeatureAssistedEeprom))
}

func TestDeriveFeaturesBankChecksumByBuildNumber(t *testing.T) {
	f := device.DeriveFeatures(device.FirmwareVersion{Major: 1, Minor: 0, Build: 115})
	require.True(t, f.Has(device.FeatureBankChecksumVerify))
}

func TestDeriveFeaturesOldBuildLacksNewerFeatures(t *testing.T) {
	f := device.DeriveFeatures(device.FirmwareVersion{Major: 1, Minor: 0, Build: 10})
	require.True(t, f.Has(device.FeatureHeartbeat))
	require.False(t, f.Has(device.FeatureAssistedEeprom))
	require.False(t, f.Has(device.FeatureBankChecksumVerify))
}

func TestRequiresLegacyModeWhenAddressUnresolved(t *testing.T) {
	d := &device.Device{AddressResolved: false, Features: device.FeatureHeartbeat}
	require.True(t, d.RequiresLegacyMode())
}

func TestRequiresLegacyModeWhenNoHeartbeat(t *testing.T) {
	d := &device.Device{AddressResolved: true, Features: 0}
	require.True(t, d.RequiresLegacyMode())
}

func TestDoesNotRequireLegacyModeWhenHealthy(t *testing.T) {
	d := &device.Device{AddressResolved: true, Features: device.FeatureHeartbeat}
	require.False(t, d.RequiresLegacyMode())
}

func TestValidateStartLaneAcceptsMatchingLane(t *testing.T) {
	require.NoError(t, device.ValidateStartLane(device.BifurcationX8X8, 8))
}

func TestValidateStartLaneRejectsUnmatchedLane(t *testing.T) {
	err := device.ValidateStartLane(device.BifurcationX8X8, 3)
	require.Error(t, err)
	var invalid *retimerfwerr.LinkConfigInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestBifurcationTableCoversEveryMode(t *testing.T) {
	require.Equal(t, 36, len(device.BifurcationTable))
	for _, links := range device.BifurcationTable {
		require.NotEmpty(t, links)
	}
}
