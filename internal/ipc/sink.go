// Package ipc is the surface between the bridge and the embedding process.
package ipc

import (
	"encoding/json"

	"github.com/tokenfolio/walletbridge/internal/logx"
)

// IPC channels the bridge publishes on.
const (
	ChannelConnectionStatus = "wallet-bridge:status"
	ChannelWalletEvent      = "wallet-bridge:event"
)

// Sink forwards messages to the embedding UI process.
type Sink interface {
	SendIpcMessage(channel string, args ...any)
}

// Opener opens a URL in an external browser surface.
type Opener interface {
	OpenExternal(url string) error
}

// notifier adapts a Sink to the bridge's Notifier interface.
type notifier struct {
	sink Sink
}

func (n notifier) NotifyConnectionStatus(status string) {
	n.sink.SendIpcMessage(ChannelConnectionStatus, status)
}

func (n notifier) ForwardWalletEvent(eventName string, eventData json.RawMessage) {
	n.sink.SendIpcMessage(ChannelWalletEvent, eventName, eventData)
}

// LogSink writes IPC messages to the log. It stands in for the embedding
// process when the bridge runs standalone.
type LogSink struct{}

func (LogSink) SendIpcMessage(channel string, args ...any) {
	logx.Log.Info().Str("channel", channel).Interface("args", args).Msg("ipc message")
}
