// Command retimerctl drives a firmware update against one retimer over SMBus
// (spec.md §6's CLI surface). Mode 1 initializes the device and logs that
// read mode was requested; it does not read the firmware back.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/asteralabs/retimerfw/internal/config"
	"github.com/asteralabs/retimerfw/internal/device"
	"github.com/asteralabs/retimerfw/internal/eeprom"
	"github.com/asteralabs/retimerfw/internal/i2cbus"
	"github.com/asteralabs/retimerfw/internal/micro"
	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
	"github.com/asteralabs/retimerfw/internal/transport"
	"github.com/asteralabs/retimerfw/internal/update"
)

const (
	modeUpdate = 0
	modeRead   = 1
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "retimerctl",
		Short: "Program and verify retimer firmware over SMBus",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config overlay")

	root.AddCommand(newUpdateCmd(&configPath))
	return root
}

func newUpdateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update <bus> <retimer-index> <image> <mode>",
		Short: "update (mode 0) one retimer's firmware; mode 1 only initializes and logs",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			busIndex, err := strconv.Atoi(args[0])
			if err != nil {
				return &retimerfwerr.InvalidArgumentError{Reason: "bus index must be an integer"}
			}
			retimerIndex, err := strconv.Atoi(args[1])
			if err != nil {
				return &retimerfwerr.InvalidArgumentError{Reason: "retimer index must be an integer"}
			}
			imagePath := args[2]
			mode, err := strconv.Atoi(args[3])
			if err != nil || (mode != modeUpdate && mode != modeRead) {
				return &retimerfwerr.InvalidArgumentError{Reason: "mode must be 0 (update) or 1 (read)"}
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if retimerIndex < 0 || retimerIndex >= len(cfg.Retimer.Addresses) {
				return &retimerfwerr.InvalidArgumentError{Reason: "retimer index out of range for configured addresses"}
			}

			return runUpdate(cfg, busIndex, retimerIndex, imagePath, mode)
		},
	}
}

func runUpdate(cfg config.Config, busIndex, retimerIndex int, imagePath string, mode int) error {
	log := slog.Default()

	bus := i2cbus.NewLinuxBus(cfg.Timing.LockRetries, cfg.Timing.LockBackoff)
	if err := bus.Open(fmt.Sprintf("/dev/i2c-%d", busIndex)); err != nil {
		return err
	}
	defer bus.Close()

	addr := cfg.Retimer.Addresses[retimerIndex]

	resolved := true
	if cfg.Arp.Enabled {
		assigner := i2cbus.NewArpAssigner(cfg.Arp.DevicePath, cfg.Arp.BaudRate, cfg.Arp.Settle)
		ok, err := assigner.Resolve(bus, addr, probeAddress)
		if err != nil {
			return err
		}
		resolved = ok
	}

	framing := transport.FramingShort
	if cfg.Retimer.LongFraming {
		framing = transport.FramingLong
	}
	t := transport.New(bus, addr, framing, cfg.Retimer.PECEnable)
	if err := t.Init(); err != nil {
		return err
	}

	dev := &device.Device{Address: addr, AddressResolved: resolved}

	microDriver := micro.NewDriver(t, cfg.Timing.MicroPollAttempts, cfg.Timing.MicroPollPace)
	mainReader := micro.NewWindowReader(microDriver, micro.MainWindow(0x700))
	if err := dev.Init(t, mainReader); err != nil {
		return err
	}

	prog := eeprom.NewDevice(t, microDriver, dev, nil, cfg.Timing.DataBlockProgram, cfg.Timing.ResetSettle)

	orch := update.New(dev, prog, nil, log)

	if mode == modeRead {
		log.Info("read mode requested; reporting current device state only", "address", addr)
		return nil
	}
	return orch.Run(imagePath)
}

// probeAddress reports whether a retimer answers at the address bus is
// currently set to, by attempting a one-byte block read; any I/O error means
// nothing is listening there yet.
func probeAddress(bus i2cbus.BlockDevice) error {
	_, err := bus.BlockRead(0x00, 1)
	return err
}

// exitCodeFor maps the retimerfwerr taxonomy onto spec.md §6's exit-code
// partitions: 100-110 argument errors, 110-120 transport errors, 200-299
// write-NACK-per-retimer, 300-399 CRC-per-retimer, 400-499 read-NACK-per-
// retimer, 0xFF generic.
func exitCodeFor(err error) int {
	switch e := err.(type) {
	case *retimerfwerr.InvalidArgumentError:
		return 100
	case *retimerfwerr.HexParseError, *retimerfwerr.BinaryReadUnderflowError:
		return 101
	case *retimerfwerr.TransportError, *retimerfwerr.BusBusyError, *retimerfwerr.ArpUnsuccessfulError:
		return 110
	case *retimerfwerr.EepromVerifyFailure:
		if e.RetimerMask != 0 {
			return 400
		}
		return 200
	case *retimerfwerr.EepromWriteError:
		return 200
	case *retimerfwerr.EepromCrcBlockNumFailError, *retimerfwerr.EepromCrcByteFailError:
		return 300
	case *retimerfwerr.FpgaNotReadyError:
		return 110
	default:
		return 0xFF
	}
}
