// Package update implements spec.md §4.7: the orchestrator sequences
// load -> mode-select -> write -> verify -> worst-outcome over a single
// Device handle, emitting the retimerevent boundary transitions spec.md §6
// names at each stage.
package update

import (
	"fmt"
	"log/slog"

	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/eeprom"
	"github.com/asteralabs/retimerfw/internal/image"
	"github.com/asteralabs/retimerfw/internal/retimerevent"
)

// Mode names the write/verify path UpdateOrchestrator selected for one run,
// per spec.md §4.7 step 2.
type Mode int

const (
	ModeAssisted Mode = iota
	ModeLegacy
)

func (m Mode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "assisted"
}

// Orchestrator sequences one firmware-image update against a Device,
// delegating the actual programming and verification to a Programmer
// (internal/eeprom.Device or internal/fpga.Bridge — spec.md §9's unified
// Programmer interface).
type Orchestrator struct {
	dev     *device.Device
	prog    eeprom.Programmer
	emitter *retimerevent.Emitter
	log     *slog.Logger
}

// New constructs an Orchestrator over an already-initialized Device and a
// Programmer bound to it.
func New(dev *device.Device, prog eeprom.Programmer, emitter *retimerevent.Emitter, log *slog.Logger) *Orchestrator {
	if emitter == nil {
		emitter = retimerevent.NewEmitter(log)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{dev: dev, prog: prog, emitter: emitter, log: log}
}

// Mode reports which write/verify path this run will take, per spec.md
// §4.7 step 2: legacy if address resolution was required or no heartbeat was
// observed, assisted otherwise.
func (o *Orchestrator) Mode() Mode {
	if o.dev.RequiresLegacyMode() {
		return ModeLegacy
	}
	return ModeAssisted
}

// Run loads path (HEX then binary fallback), programs it through the
// orchestrator's Programmer, and verifies the result, surfacing the worst
// observed outcome (spec.md §4.7).
func (o *Orchestrator) Run(path string) error {
	retimer := fmt.Sprintf("0x%02x", o.dev.Address)
	mode := o.Mode()
	o.emitter.TargetDetermined(retimer, mode.String())

	img, err := image.Load(path)
	if err != nil {
		o.emitter.TransferFailedEvent(retimer, err)
		return err
	}

	o.log.Info("programming eeprom", "address", o.dev.Address, "mode", mode.String())
	o.emitter.TransferringToComponent(retimer, path)

	if err := o.prog.Write(img); err != nil {
		o.emitter.TransferFailedEvent(retimer, err)
		return err
	}

	if err := o.prog.Verify(img); err != nil {
		o.emitter.VerificationFailedEvent(retimer, err)
		o.emitter.ApplyFailedEvent(retimer, err)
		return err
	}

	o.emitter.UpdateSuccessfulEvent(retimer, o.dev.Version.String())
	o.emitter.AwaitToActivateEvent(retimer)
	return nil
}
