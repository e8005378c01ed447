package bridge

import (
	"encoding/json"
	"errors"
)

const jsonrpcVersion = "2.0"

// Notification types exchanged with the bridge page.
const (
	NotifyCloseTab    = "close_tab"
	NotifyReconnected = "reconnected"
	NotifyWalletEvent = "wallet_event"
)

// Readiness probe method and its expected reply.
const (
	pingMethod   = "ping"
	pongSentinel = "pong"
)

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Request is a JSON-RPC call relayed to the wallet provider.
type Request struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is the wallet provider's reply to a Request.
type Response struct {
	ID      string          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a one-way message in either direction.
type Notification struct {
	Type      string          `json:"type"`
	EventName string          `json:"eventName,omitempty"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// frame is the undiscriminated envelope of an inbound text frame. The
// message handler classifies it as a Response or Notification after
// consulting the pending table.
type frame struct {
	ID        string          `json:"id"`
	JSONRPC   string          `json:"jsonrpc"`
	Method    string          `json:"method"`
	Type      string          `json:"type"`
	Result    json.RawMessage `json:"result"`
	Error     *RPCError       `json:"error"`
	EventName string          `json:"eventName"`
	EventData json.RawMessage `json:"eventData"`
}

var errMalformedFrame = errors.New("malformed frame")

// decodeFrame parses an inbound text frame and checks it matches at least
// one of the three wire shapes. Frames that match none are rejected here so
// internal code only ever handles typed data.
func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, err
	}
	if f.ID != "" && f.JSONRPC == jsonrpcVersion {
		return f, nil
	}
	if f.Type != "" {
		return f, nil
	}
	return frame{}, errMalformedFrame
}
