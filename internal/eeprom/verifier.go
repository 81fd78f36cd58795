package eeprom

import (
	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/image"
	"github.com/asteralabs/retimerfw/internal/micro"
	"github.com/asteralabs/retimerfw/internal/retimerevent"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
	"github.com/asteralabs/retimerfw/internal/transport"
)

// Verifier checks a written EEPROM image against the in-memory image it was
// written from, by bank checksum, byte-level comparison, or block-CRC audit
// (spec.md §4.6).
type Verifier struct {
	t       *transport.Transport
	m       *micro.Driver
	dev     *device.Device
	emitter *retimerevent.Emitter
}

// NewVerifier constructs a Verifier.
func NewVerifier(t *transport.Transport, m *micro.Driver, dev *device.Device, emitter *retimerevent.Emitter) *Verifier {
	return &Verifier{t: t, m: m, dev: dev, emitter: emitter}
}

// Verify runs the checksum-based strategy when the device supports it,
// falling back to the byte-level strategy when checksum verification fails
// or is unsupported, mirroring ariesUpdateFirmware's cascade (spec.md
// §4.7).
func (v *Verifier) Verify(img *image.Image) error {
	if v.dev.Features.Has(device.FeatureBankChecksumVerify) && !v.dev.RequiresLegacyMode() {
		if err := v.VerifyByChecksum(img); err == nil {
			return nil
		}
	}
	return v.VerifyByteLevel(img)
}

// VerifyByChecksum reads back the device's per-bank checksum for every bank
// up to the image's valid-data end and compares it against the checksum
// computed from the in-memory image, mirroring
// ariesVerifyEEPROMImageViaChecksum (spec.md §4.6.A).
func (v *Verifier) VerifyByChecksum(img *image.Image) error {
	end := computeWriteExtent(img)
	numBanks := (end + image.BankSize - 1) / image.BankSize

	mailbox := micro.MainWindow(0x700)
	var bad []uint32
	for bank := 0; bank < numBanks; bank++ {
		expected := img.BankChecksum(bank, end)
		got, err := v.readDeviceBankChecksum(mailbox, bank)
		if err != nil {
			return err
		}
		if got != expected {
			bad = append(bad, uint32(bank))
		}
	}
	if len(bad) > 0 {
		return &retimerfwerr.EepromVerifyFailure{Addresses: bad}
	}
	return nil
}

// readDeviceBankChecksum asks the main micro's mailbox window to compute and
// return the running sum-of-bytes checksum for a bank.
func (v *Verifier) readDeviceBankChecksum(mailbox micro.Window, bank int) (uint32, error) {
	const cmdOffset = 0x10
	if err := v.m.WriteByte(mailbox, cmdOffset, byte(bank)); err != nil {
		return 0, err
	}
	data, err := v.m.ReadBlock(mailbox, cmdOffset+1, 4)
	if err != nil {
		return 0, err
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24, nil
}

// VerifyByteLevel reads every byte of the valid-data region back and
// compares it against the in-memory image, attempting one rewrite-and-verify
// recovery per mismatching address before reporting failure, mirroring
// ariesVerifyEEPROMImage's legacy byte-compare loop (spec.md §4.6.B).
func (v *Verifier) VerifyByteLevel(img *image.Image) error {
	end := computeWriteExtent(img)

	currentBank := -1
	var bad []uint32
	for addr := 0; addr < end; addr++ {
		if bank := addr / image.BankSize; bank != currentBank {
			if err := v.setPage(bank); err != nil {
				return err
			}
			currentBank = bank
		}
		got, err := v.readByte(addr)
		if err != nil {
			return err
		}
		want := img.Data[addr]
		if got == want {
			continue
		}
		if err := v.writeByte(addr, want); err != nil {
			return err
		}
		got2, err := v.readByte(addr)
		if err != nil {
			return err
		}
		if got2 != want {
			bad = append(bad, uint32(addr))
		}
	}
	if len(bad) > 0 {
		return &retimerfwerr.EepromVerifyFailure{Addresses: bad}
	}
	return nil
}

// setPage mirrors Writer.setPage: the byte-level verify path drives the same
// on-chip I2C master and must announce the same bank crossings.
func (v *Verifier) setPage(bank int) error {
	if err := v.t.Lock(); err != nil {
		return err
	}
	defer v.t.Unlock()
	return v.t.WriteBytes(regPageSelect, []byte{0x50 | byte(bank&3)})
}

func (v *Verifier) readByte(addr int) (byte, error) {
	if err := v.t.Lock(); err != nil {
		return 0, err
	}
	defer v.t.Unlock()
	local := addr % image.BankSize
	if err := v.t.WriteBytes(regMasterAddr, []byte{byte(local), byte(local >> 8)}); err != nil {
		return 0, err
	}
	b, err := v.t.ReadBytes(regMasterData, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (v *Verifier) writeByte(addr int, val byte) error {
	if err := v.t.Lock(); err != nil {
		return err
	}
	defer v.t.Unlock()
	local := addr % image.BankSize
	if err := v.t.WriteBytes(regMasterAddr, []byte{byte(local), byte(local >> 8)}); err != nil {
		return err
	}
	return v.t.WriteBytes(regMasterData, []byte{val})
}

// VerifyBlockCRC audits the device's block-CRC chain against the in-memory
// image's, reporting a block-count mismatch or the first differing CRC
// byte, mirroring ariesCheckEEPROMCrc (spec.md §4.6.C).
func (v *Verifier) VerifyBlockCRC(img *image.Image) error {
	imgBlocks, err := img.Blocks()
	if err != nil {
		return err
	}
	imgCRCs := image.BlockCRCs(imgBlocks)

	deviceCRCs, err := v.readDeviceBlockCRCs(len(imgBlocks))
	if err != nil {
		return err
	}
	if len(deviceCRCs) != len(imgCRCs) {
		return &retimerfwerr.EepromCrcBlockNumFailError{DeviceCount: len(deviceCRCs), ImageCount: len(imgCRCs)}
	}
	for i := range imgCRCs {
		if deviceCRCs[i] != imgCRCs[i] {
			return &retimerfwerr.EepromCrcByteFailError{BlockIndex: i, Device: deviceCRCs[i], Image: imgCRCs[i]}
		}
	}
	return nil
}

func (v *Verifier) readDeviceBlockCRCs(n int) ([]byte, error) {
	mailbox := micro.MainWindow(0x700)
	const cmdOffset = 0x20
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		if err := v.m.WriteByte(mailbox, cmdOffset, byte(i)); err != nil {
			return nil, err
		}
		b, err := v.m.ReadByte(mailbox, cmdOffset+1)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
