package ws

import "time"

// Message is the envelope for all WebSocket messages. Type is the bus
// topic the message was derived from, e.g. "alarm.created".
type Message struct {
	Type      string    `json:"type"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
