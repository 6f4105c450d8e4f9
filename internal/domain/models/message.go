package models

import "encoding/json"

// Wire message types exchanged with WebSocket clients.
const (
	MsgSubscribe      = "subscribe"
	MsgUnsubscribe    = "unsubscribe"
	MsgSubscribed     = "subscribed"
	MsgUnsubscribed   = "unsubscribed"
	MsgPriceUpdate    = "price_update"
	MsgAlertTriggered = "alert_triggered"
	MsgError          = "error"
)

// ClientRequest is an inbound subscribe/unsubscribe frame.
type ClientRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Envelope is the outbound frame shape.
type Envelope struct {
	Type    string      `json:"type"`
	Symbols []string    `json:"symbols,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// NewPriceUpdate serializes a price_update frame.
func NewPriceUpdate(snap *PriceSnapshot) ([]byte, error) {
	return json.Marshal(Envelope{Type: MsgPriceUpdate, Data: snap})
}

// NewAlertTriggered serializes an alert_triggered frame.
func NewAlertTriggered(alert *Alert) ([]byte, error) {
	return json.Marshal(Envelope{Type: MsgAlertTriggered, Data: alert})
}

// NewAck serializes a subscribed/unsubscribed acknowledgement. The
// symbols field is always present, never null, so clients can read the
// acked set without probing for it.
func NewAck(msgType string, symbols []string) ([]byte, error) {
	if symbols == nil {
		symbols = []string{}
	}
	return json.Marshal(struct {
		Type    string   `json:"type"`
		Symbols []string `json:"symbols"`
	}{Type: msgType, Symbols: symbols})
}

// NewError serializes an error frame. Code may be empty.
func NewError(message, code string) ([]byte, error) {
	return json.Marshal(Envelope{Type: MsgError, Message: message, Code: code})
}
