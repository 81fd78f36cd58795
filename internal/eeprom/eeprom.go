// Package eeprom implements spec.md §4.5 and §4.6: programming a firmware
// image into the device's attached EEPROM, and verifying it afterward by one
// of three strategies. Both the assisted (main-micro mailbox) and legacy
// (direct on-chip I2C master) code paths share one quiesce/isolate/reset
// state machine, grounded on original_source/aries-fw-update/aries_api.c's
// ariesWriteEEPROMImage/ariesVerifyEEPROMImage*.
package eeprom

import (
	"time"

	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/image"
	"github.com/asteralabs/retimerfw/internal/micro"
	"github.com/asteralabs/retimerfw/internal/retimerevent"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
	"github.com/asteralabs/retimerfw/internal/transport"
)

// pageSize is the per-page span of the on-chip I2C master's address window.
const pageSize = 8192

// burstSize is the largest single block write/read the on-chip I2C master
// accepts per transaction.
const burstSize = 16

// Registers on the main register map controlling the on-chip I2C master and
// its resets, transliterated from aries_api.c's 0x600/0x602 literals.
const (
	regHwReset uint32 = 0x600
	regSwReset uint32 = 0x602

	// regMasterAddr and regMasterData are the on-chip I2C master's
	// address-set and data-block registers for the legacy write/verify path;
	// every transfer sets the target address first, then streams up to
	// burstSize data bytes, keeping each transaction within the transport's
	// 16-byte block limit.
	regMasterAddr uint32 = 0x610
	regMasterData uint32 = 0x620

	// regPageSelect is the on-chip I2C master's page-select register,
	// transliterated from aries_misc.c's ariesI2CMasterSetPage. It is shared
	// by the assisted and legacy paths alike: both drive the same on-chip
	// master, so both must announce a bank crossing through this register
	// before the first burst targeting the new bank.
	regPageSelect uint32 = 0x614
)

// Programmer is implemented by anything that can stage and verify a firmware
// image against a target — the EEPROM path here, and the FPGA bridge path
// (internal/fpga), per spec.md §9's re-architecture note unifying both
// behind one interface the update orchestrator drives.
type Programmer interface {
	Write(img *image.Image) error
	Verify(img *image.Image) error
}

// Device bundles a Writer and Verifier for one retimer's EEPROM into a
// single Programmer, the shape the update orchestrator drives.
type Device struct {
	*Writer
	*Verifier
}

// NewDevice constructs the combined Writer+Verifier Programmer for one
// retimer's EEPROM.
func NewDevice(t *transport.Transport, m *micro.Driver, dev *device.Device, emitter *retimerevent.Emitter, dataBlockProgram, resetSettle time.Duration) *Device {
	return &Device{
		Writer:   NewWriter(t, m, dev, emitter, dataBlockProgram, resetSettle),
		Verifier: NewVerifier(t, m, dev, emitter),
	}
}

var _ Programmer = (*Device)(nil)

// Writer programs a firmware image into the EEPROM attached to one
// retimer, selecting the assisted or legacy burst path based on the
// device's detected feature set.
type Writer struct {
	t                 *transport.Transport
	m                 *micro.Driver
	dev               *device.Device
	emitter           *retimerevent.Emitter
	dataBlockProgram  time.Duration
	resetSettle       time.Duration
}

// NewWriter constructs a Writer. dataBlockProgram is the settle time after
// each burst write (spec.md §4.5's ARIES_DATA_BLOCK_PROGRAM_TIME_USEC);
// resetSettle is the delay after issuing the I2C master soft reset.
func NewWriter(t *transport.Transport, m *micro.Driver, dev *device.Device, emitter *retimerevent.Emitter, dataBlockProgram, resetSettle time.Duration) *Writer {
	if dataBlockProgram <= 0 {
		dataBlockProgram = 5 * time.Millisecond
	}
	if resetSettle <= 0 {
		resetSettle = 2 * time.Millisecond
	}
	return &Writer{t: t, m: m, dev: dev, emitter: emitter, dataBlockProgram: dataBlockProgram, resetSettle: resetSettle}
}

// legacyMode reports whether the writer must use the direct on-chip I2C
// master path instead of asking the main micro's mailbox to do the burst
// writes, per spec.md §4.5: "legacy mode is forced whenever ARP assigned the
// address, or no heartbeat was observed."
func (w *Writer) legacyMode() bool {
	return w.dev.RequiresLegacyMode()
}

// Write programs img into the attached EEPROM: it clears both reset
// registers, isolates the main micro (legacy mode only), pulses the
// software-reset register, computes the write extent, and bursts the image
// (spec.md §4.5). It does not bit-bang a bus-recovery sequence on the I2C
// master's signals and does not program the master's enable, target-address
// or control registers.
func (w *Writer) Write(img *image.Image) error {
	if err := w.quiesceResets(); err != nil {
		return err
	}
	if w.legacyMode() {
		if err := w.isolateMainMicro(); err != nil {
			return err
		}
	}
	if err := w.t.Lock(); err != nil {
		return err
	}
	defer w.t.Unlock()

	if err := w.softResetI2CMaster(); err != nil {
		return err
	}
	time.Sleep(w.resetSettle)

	end := computeWriteExtent(img)

	var writeErr error
	if !w.legacyMode() && w.dev.Features.Has(device.FeatureAssistedEeprom) {
		writeErr = w.writeAssisted(img, end)
	} else {
		writeErr = w.writeLegacy(img, end)
	}
	if writeErr != nil {
		return writeErr
	}

	tmp := []byte{0x00, 0x02}
	if err := w.t.WriteBytes(regHwReset, tmp); err != nil {
		return err
	}
	if err := w.t.WriteBytes(regSwReset, tmp); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	return nil
}

// computeWriteExtent pads the image's valid-data end (End(), already
// 16-byte aligned) by 8 bytes and rounds it up to the next burst boundary,
// capped at image.Size, as aries_api.c's ariesWriteEEPROMImage does with
// its eepromWriteDelta/addrDiff arithmetic (spec.md §4.5's extent
// computation). The result is not rounded to a page boundary.
func computeWriteExtent(img *image.Image) int {
	end := img.End()
	if end >= image.Size {
		return image.Size
	}
	end += 8
	if delta := end % burstSize; delta != 0 {
		end += burstSize - delta
	}
	if end > image.Size {
		end = image.Size
	}
	return end
}

func (w *Writer) quiesceResets() error {
	clear := []byte{0x00, 0x00}
	if err := w.t.WriteBytes(regHwReset, clear); err != nil {
		return err
	}
	return w.t.WriteBytes(regSwReset, clear)
}

// isolateMainMicro pulses the main micro into reset so the legacy path can
// drive the on-chip I2C master without contention (spec.md §4.5, mirroring
// aries_api.c's legacyMode branch of ariesWriteEEPROMImage).
func (w *Writer) isolateMainMicro() error {
	for _, b := range [][]byte{{0x00, 0x04}, {0x00, 0x06}, {0x00, 0x04}} {
		if err := w.t.WriteBytes(regSwReset, b); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) softResetI2CMaster() error {
	for _, b := range [][]byte{{0x00, 0x02}, {0x00, 0x00}} {
		if err := w.t.WriteBytes(regSwReset, b); err != nil {
			return err
		}
	}
	return nil
}

// writeAssisted bursts img[:end] to the EEPROM via the main micro's mailbox
// window, the fast path available once firmware is known-good (spec.md
// §4.5).
func (w *Writer) writeAssisted(img *image.Image, end int) error {
	mailbox := micro.MainWindow(0x700)
	return w.burstWrite(img, end, func(addr int, chunk []byte) error {
		return w.m.WriteBlock(mailbox, uint32(addr), chunk)
	})
}

// writeLegacy bursts img[:end] to the EEPROM by driving the on-chip I2C
// master directly, one byte-block transaction at a time (spec.md §4.5's
// legacy path).
func (w *Writer) writeLegacy(img *image.Image, end int) error {
	return w.burstWrite(img, end, func(addr int, chunk []byte) error {
		if err := w.t.WriteBytes(regMasterAddr, []byte{byte(addr), byte(addr >> 8)}); err != nil {
			return err
		}
		return w.t.WriteBytes(regMasterData, chunk)
	})
}

// setPage announces a bank crossing to the on-chip I2C master. The target
// byte is 0x50 | (bank & 3), the literal aries_misc.c uses for its four
// EEPROM bank select addresses.
func (w *Writer) setPage(bank int) error {
	return w.t.WriteBytes(regPageSelect, []byte{0x50 | byte(bank&3)})
}

func (w *Writer) burstWrite(img *image.Image, end int, send func(addr int, chunk []byte) error) error {
	currentBank := -1
	for addr := 0; addr < end; addr += pageSize {
		pageEnd := addr + pageSize
		if pageEnd > end {
			pageEnd = end
		}
		for off := addr; off < pageEnd; off += burstSize {
			if bank := off / image.BankSize; bank != currentBank {
				if err := w.setPage(bank); err != nil {
					return &retimerfwerr.EepromWriteError{Reason: err.Error()}
				}
				currentBank = bank
			}
			chunkEnd := off + burstSize
			if chunkEnd > pageEnd {
				chunkEnd = pageEnd
			}
			if err := send(off, img.Data[off:chunkEnd]); err != nil {
				return &retimerfwerr.EepromWriteError{Reason: err.Error()}
			}
			time.Sleep(w.dataBlockProgram)
		}
	}
	return nil
}
