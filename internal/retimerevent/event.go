// Package retimerevent is the logging-sink collaborator named in spec §6:
// it emits one structured record per boundary transition the update engine
// passes through, tagged with a REDFISH_MESSAGE_ID the way the device's
// original dbus log-event service did, but through a slog.Logger handed in
// by the caller instead of a single global sink.
package retimerevent

import (
	"context"
	"log/slog"
)

// MessageID names one of the seven boundary transitions the core emits.
type MessageID string

const (
	TargetDetermined       MessageID = "TargetDetermined"
	TransferringToComponent MessageID = "TransferringToComponent"
	TransferFailed         MessageID = "TransferFailed"
	VerificationFailed     MessageID = "VerificationFailed"
	ApplyFailed            MessageID = "ApplyFailed"
	UpdateSuccessful       MessageID = "UpdateSuccessful"
	AwaitToActivate        MessageID = "AwaitToActivate"
)

// Emitter logs boundary transitions with a consistent shape so downstream
// log-aggregation can filter on redfish_message_id regardless of which
// component raised the event.
type Emitter struct {
	log *slog.Logger
}

// NewEmitter wraps a slog.Logger. A nil logger falls back to slog.Default().
func NewEmitter(log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{log: log}
}

// Emit logs one boundary transition. arg0/arg1 are the two free-form
// arguments the original log-event payload carried (e.g. retimer address and
// firmware version); resolution is an optional operator-facing hint and may
// be empty.
func (e *Emitter) Emit(id MessageID, severity slog.Level, arg0, arg1, resolution string) {
	attrs := []any{
		slog.String("redfish_message_id", string(id)),
		slog.String("arg0", arg0),
		slog.String("arg1", arg1),
	}
	if resolution != "" {
		attrs = append(attrs, slog.String("resolution", resolution))
	}
	e.log.Log(context.Background(), severity, string(id), attrs...)
}

// TargetDetermined logs that the update engine has resolved which retimer
// (and programming mode) it will drive.
func (e *Emitter) TargetDetermined(retimer, mode string) {
	e.Emit(MessageID("TargetDetermined"), slog.LevelInfo, retimer, mode, "")
}

// TransferringToComponent logs the start of an EEPROM write pass.
func (e *Emitter) TransferringToComponent(retimer, image string) {
	e.Emit(MessageID("TransferringToComponent"), slog.LevelInfo, retimer, image, "")
}

// TransferFailedEvent logs that the write path aborted.
func (e *Emitter) TransferFailedEvent(retimer string, err error) {
	e.Emit(MessageID("TransferFailed"), slog.LevelError, retimer, errString(err), "retry the update")
}

// VerificationFailedEvent logs a verify-stage failure.
func (e *Emitter) VerificationFailedEvent(retimer string, err error) {
	e.Emit(MessageID("VerificationFailed"), slog.LevelError, retimer, errString(err), "reprogram and reverify")
}

// ApplyFailedEvent logs that neither write nor verify could recover a
// mismatch and the update is abandoned.
func (e *Emitter) ApplyFailedEvent(retimer string, err error) {
	e.Emit(MessageID("ApplyFailed"), slog.LevelError, retimer, errString(err), "")
}

// UpdateSuccessfulEvent logs a clean end-to-end update.
func (e *Emitter) UpdateSuccessfulEvent(retimer, version string) {
	e.Emit(MessageID("UpdateSuccessful"), slog.LevelInfo, retimer, version, "")
}

// AwaitToActivateEvent logs that a reset toggle is required before the new
// firmware takes effect; the engine itself does not perform the toggle
// (spec §4.7), only announces that one is pending.
func (e *Emitter) AwaitToActivateEvent(retimer string) {
	e.Emit(MessageID("AwaitToActivate"), slog.LevelInfo, retimer, "", "power-cycle or hardware-reset the retimer")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
