package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Ready         bool         `json:"ready"`
	LoRaWAN       LoRaWANJSON  `json:"lorawan"`
	Power         PowerJSON    `json:"power"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LoRaWANJSON reports the join and transmission state.
type LoRaWANJSON struct {
	Joined            bool   `json:"joined"`
	Phase             string `json:"phase"`
	AttemptsRemaining uint8  `json:"attempts_remaining"`
	TxReason          string `json:"tx_reason"`
	LastOutcome       string `json:"last_outcome,omitempty"`
}

// PowerJSON reports the power source.
type PowerJSON struct {
	External bool   `json:"external"`
	SupplyMv uint16 `json:"supply_mv"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	ShortPresses   int `json:"short_presses"`
	ResetPresses   int `json:"reset_presses"`
	IgnoredPresses int `json:"ignored_presses"`
	StrayPulses    int `json:"stray_pulses"`
	JoinOK         int `json:"join_ok"`
	JoinFailed     int `json:"join_failed"`
	TxAccepted     int `json:"tx_accepted"`
	TxRejected     int `json:"tx_rejected"`
	RxFrames       int `json:"rx_frames"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DevEUI        string `json:"dev_eui,omitempty"`
	Activation    string `json:"activation"`
	MsgType       string `json:"msg_type"`
	Port          uint8  `json:"port"`
	DutyCycleS    int64  `json:"duty_cycle_s"`
	DebounceMs    int64  `json:"debounce_ms"`
	ShortActionMs int64  `json:"short_action_ms"`
	ResetMs       int64  `json:"reset_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	n := snap.Node
	phase := string(n.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}
	c := n.Counts

	return StatusInner{
		BootID: snap.BootID,
		Ready:  snap.Ready(),
		LoRaWAN: LoRaWANJSON{
			Joined:            n.Joined,
			Phase:             phase,
			AttemptsRemaining: n.AttemptsRemaining,
			TxReason:          n.TxReason.String(),
			LastOutcome:       n.LastOutcome,
		},
		Power:         PowerJSON{External: n.ExternalPower, SupplyMv: snap.SupplyMv},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			ShortPresses:   c.ShortPresses,
			ResetPresses:   c.ResetPresses,
			IgnoredPresses: c.IgnoredPresses,
			StrayPulses:    c.StrayPulses,
			JoinOK:         c.JoinOK,
			JoinFailed:     c.JoinFailed,
			TxAccepted:     c.TxAccepted,
			TxRejected:     c.TxRejected,
			RxFrames:       c.RxFrames,
		},
		Config: ConfigJSON{
			DevEUI:        snap.Config.DevEUI,
			Activation:    snap.Config.Activation,
			MsgType:       snap.Config.MsgType,
			Port:          snap.Config.Port,
			DutyCycleS:    snap.Config.DutyCycleS,
			DebounceMs:    snap.Config.DebounceMs,
			ShortActionMs: snap.Config.ShortActionMs,
			ResetMs:       snap.Config.ResetMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
