package lorawan

import (
	"sync"
	"time"
)

// SentFrame records one Send call.
type SentFrame struct {
	Port    uint8
	Payload []byte
	MsgType MsgType
}

// FakeMiddleware is a test double for Middleware and SecureElement.
// Results are injected with the Complete* and Deliver* helpers, which queue
// a notification and call OnMacProcess like a real stack would.
type FakeMiddleware struct {
	mu      sync.Mutex
	handler Handler
	pending []func(Handler)

	// Recorded calls.
	Configured []Params
	Joins      []ActivationType
	Sent       []SentFrame
	Processed  int

	// SendStatus and NextTxIn are returned by Send.
	SendStatus Status
	NextTxIn   time.Duration

	// JoinError and ConfigureError are returned when set.
	JoinError      error
	ConfigureError error

	// Secure element contents and injected failure.
	DevEUI  EUI64
	JoinEUI EUI64
	Keys    map[KeyID]AES128Key
	SEError error
	SECalls int
}

// NewFakeMiddleware creates a fake that accepts every Send.
func NewFakeMiddleware() *FakeMiddleware {
	return &FakeMiddleware{Keys: make(map[KeyID]AES128Key)}
}

// SetHandler registers the callback receiver.
func (f *FakeMiddleware) SetHandler(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Configure records p.
func (f *FakeMiddleware) Configure(p Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.Configured = append(f.Configured, p)
	return nil
}

// Join records the activation type.
func (f *FakeMiddleware) Join(a ActivationType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.JoinError != nil {
		return f.JoinError
	}
	f.Joins = append(f.Joins, a)
	return nil
}

// Send records the frame and returns SendStatus.
func (f *FakeMiddleware) Send(data *AppData, mt MsgType) (Status, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data.Buffer))
	copy(buf, data.Buffer)
	f.Sent = append(f.Sent, SentFrame{Port: data.Port, Payload: buf, MsgType: mt})
	return f.SendStatus, f.NextTxIn
}

// Process delivers queued notifications in order.
func (f *FakeMiddleware) Process() {
	f.mu.Lock()
	f.Processed++
	pending := f.pending
	f.pending = nil
	h := f.handler
	f.mu.Unlock()

	if h == nil {
		return
	}
	for _, p := range pending {
		p(h)
	}
}

func (f *FakeMiddleware) queue(fn func(Handler)) {
	f.mu.Lock()
	f.pending = append(f.pending, fn)
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.OnMacProcess()
	}
}

// CompleteJoin queues a join result.
func (f *FakeMiddleware) CompleteJoin(success bool) {
	f.queue(func(h Handler) {
		h.OnJoinResult(JoinParams{Success: success, Activation: ActivationOTAA})
	})
}

// CompleteTx queues a tx-done notification.
func (f *FakeMiddleware) CompleteTx(p TxParams) {
	f.queue(func(h Handler) { h.OnTxData(p) })
}

// DeliverRx queues a tx-done notification followed by a downlink.
func (f *FakeMiddleware) DeliverRx(tx TxParams, data AppData, rx RxParams) {
	f.queue(func(h Handler) {
		h.OnTxData(tx)
		d := data
		h.OnRxData(&d, rx)
	})
}

// SetDevEUI stores e.
func (f *FakeMiddleware) SetDevEUI(e EUI64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SECalls++
	if f.SEError != nil {
		return f.SEError
	}
	f.DevEUI = e
	return nil
}

// SetJoinEUI stores e.
func (f *FakeMiddleware) SetJoinEUI(e EUI64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SECalls++
	if f.SEError != nil {
		return f.SEError
	}
	f.JoinEUI = e
	return nil
}

// SetKey stores k under id.
func (f *FakeMiddleware) SetKey(id KeyID, k AES128Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SECalls++
	if f.SEError != nil {
		return f.SEError
	}
	f.Keys[id] = k
	return nil
}

// JoinCount returns the number of Join calls.
func (f *FakeMiddleware) JoinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Joins)
}

// SentFrames returns a copy of the recorded sends.
func (f *FakeMiddleware) SentFrames() []SentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentFrame, len(f.Sent))
	copy(out, f.Sent)
	return out
}
