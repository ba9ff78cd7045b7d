// Package status provides a thread-safe status tracker for the lora-node daemon.
// It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/lora-node/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DevEUI        string
	Activation    string
	MsgType       string
	Port          uint8
	DutyCycleS    int64
	DebounceMs    int64
	ShortActionMs int64
	ResetMs       int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	Node          logic.NodeState
	SupplyMv      uint16
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the cold-boot join sequence has finished.
func (s Snapshot) Ready() bool {
	return !s.Node.ColdBoot
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// Every tracker gets a fresh boot id so consumers can tell restarts apart.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    uuid.NewString(),
			StartTime: startTime,
			Config:    cfg,
			Node: logic.NodeState{
				ColdBoot: true,
				TxReason: logic.TxReasonUndefined,
			},
		},
		now: time.Now,
	}
}

// Update stores the latest controller state. Called from the controller's
// state hook on every change.
func (t *Tracker) Update(state logic.NodeState) {
	t.mu.Lock()
	t.snap.Node = state
	t.mu.Unlock()
}

// SetSupplyMv records the latest supply reading.
func (t *Tracker) SetSupplyMv(mv uint16) {
	t.mu.Lock()
	t.snap.SupplyMv = mv
	t.mu.Unlock()
}

// SetDutyCycle updates the displayed application duty cycle.
func (t *Tracker) SetDutyCycle(d time.Duration) {
	t.mu.Lock()
	t.snap.Config.DutyCycleS = int64(d / time.Second)
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
