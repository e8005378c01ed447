package bridge

import (
	"github.com/tokenfolio/walletbridge/internal/logx"
)

// MessageHandler validates every inbound text frame and routes it to
// response settlement or event forwarding. Parse failures are logged and
// dropped, never propagated to a caller.
type MessageHandler struct {
	pending  *pendingTable
	cm       *ConnectionManager
	notifier Notifier
}

func newMessageHandler(pending *pendingTable, cm *ConnectionManager, notifier Notifier) *MessageHandler {
	return &MessageHandler{pending: pending, cm: cm, notifier: notifier}
}

// Handle processes one raw frame from the bridge page.
func (h *MessageHandler) Handle(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		droppedFramesTotal.Inc()
		logx.Log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
		return
	}

	// A frame is a Response iff its id is known to the pending table.
	if f.ID != "" {
		if connID, ok := h.pending.connOf(f.ID); ok {
			h.handleResponse(f, connID)
			return
		}
	}

	switch f.Type {
	case NotifyWalletEvent:
		h.notifier.ForwardWalletEvent(f.EventName, f.EventData)
	case "":
		droppedFramesTotal.Inc()
		logx.Log.Warn().Str("rpc_id", f.ID).Str("method", f.Method).Msg("dropping unroutable frame")
	default:
		droppedFramesTotal.Inc()
		logx.Log.Warn().Str("type", f.Type).Msg("dropping unknown notification type")
	}
}

func (h *MessageHandler) handleResponse(f frame, connID uint64) {
	if active := h.cm.ActiveID(); connID != active {
		// A reply from a superseded connection. The answer is discarded and
		// the entry rejected right away rather than left to time out.
		droppedFramesTotal.Inc()
		logx.Log.Warn().Str("rpc_id", f.ID).Uint64("conn_id", connID).Uint64("active_conn_id", active).Msg("discarding stale response")
		h.pending.settle(f.ID, callResult{err: ErrSuperseded})
		return
	}
	if f.Error != nil {
		h.pending.settle(f.ID, callResult{err: &ProviderError{Code: f.Error.Code, Message: f.Error.Message}})
		return
	}
	h.pending.settle(f.ID, callResult{result: f.Result})
}
