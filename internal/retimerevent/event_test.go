package retimerevent_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asteralabs/retimerfw/internal/retimerevent"
)

// recordingHandler is a local slog.Handler double that remembers the
// redfish_message_id attribute of every record it receives.
type recordingHandler struct {
	ids []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "redfish_message_id" {
			h.ids = append(h.ids, a.Value.String())
		}
		return true
	})
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestEmitterCoversAllSevenBoundaryTransitions(t *testing.T) {
	rec := &recordingHandler{}
	emitter := retimerevent.NewEmitter(slog.New(rec))

	emitter.TargetDetermined("0x20", "assisted")
	emitter.TransferringToComponent("0x20", "fw.bin")
	emitter.TransferFailedEvent("0x20", errors.New("write nack"))
	emitter.VerificationFailedEvent("0x20", errors.New("mismatch"))
	emitter.ApplyFailedEvent("0x20", errors.New("mismatch"))
	emitter.UpdateSuccessfulEvent("0x20", "1.1.60")
	emitter.AwaitToActivateEvent("0x20")

	require.Equal(t, []string{
		string(retimerevent.TargetDetermined),
		string(retimerevent.TransferringToComponent),
		string(retimerevent.TransferFailed),
		string(retimerevent.VerificationFailed),
		string(retimerevent.ApplyFailed),
		string(retimerevent.UpdateSuccessful),
		string(retimerevent.AwaitToActivate),
	}, rec.ids)
}
