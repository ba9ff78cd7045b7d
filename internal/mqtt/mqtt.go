// Package mqtt publishes node telemetry with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/lora-node/internal/logic"
)

// Topic is the MQTT topic for node events.
const Topic = "lora-node/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lora-node/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a node event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "MQTT_DISCONNECT"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Node NodePayload `json:"node"`
}

// NodePayload contains the node event details. Fields that do not apply to
// the event type are omitted.
type NodePayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Reason     string `json:"reason,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	NextTxInMs int64  `json:"next_tx_in_ms,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
	Attempts   *uint8 `json:"attempts_remaining,omitempty"`
	Port       uint8  `json:"port,omitempty"`
	Size       int    `json:"size,omitempty"`
	Ack        bool   `json:"ack,omitempty"`
}

// FormatPayload creates the JSON payload for a node event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := NodePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
	}
	switch event.Type {
	case logic.EventTx:
		p.Reason = event.Reason.String()
		p.Outcome = event.Outcome
		p.NextTxInMs = event.NextTxIn.Milliseconds()
	case logic.EventButtonShort, logic.EventButtonReset, logic.EventButtonIgnored:
		p.ElapsedMs = event.ElapsedMs
	case logic.EventJoinOK, logic.EventJoinFailed, logic.EventJoinDone:
		attempts := event.Attempts
		p.Attempts = &attempts
	case logic.EventRx:
		p.Port = event.Port
		p.Size = event.Size
	case logic.EventTxDone:
		p.Ack = event.Ack
	}
	return json.Marshal(Payload{Node: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message the broker publishes if the
// node drops off without a clean SHUTDOWN.
func WillPayload(now time.Time) []byte {
	data, _ := FormatSystemPayload(SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	return data
}
