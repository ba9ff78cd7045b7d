package lorawan

import (
	"fmt"
	"time"
)

// Handler receives stack notifications. OnMacProcess may be called from any
// goroutine and must only schedule a later call to Middleware.Process; the
// other callbacks are invoked from Process.
type Handler interface {
	OnJoinResult(p JoinParams)
	OnTxData(p TxParams)
	OnRxData(data *AppData, p RxParams)
	OnMacProcess()
}

// Middleware is the LoRaWAN stack as seen by the controller.
type Middleware interface {
	// SetHandler registers the callback receiver.
	SetHandler(h Handler)

	// Configure applies stack parameters.
	Configure(p Params) error

	// Join starts a join. The result arrives through Handler.OnJoinResult.
	Join(a ActivationType) error

	// Send queues an uplink. nextTxIn is only meaningful with
	// StatusDutyCycleRestricted.
	Send(data *AppData, mt MsgType) (status Status, nextTxIn time.Duration)

	// Process delivers pending notifications to the handler.
	Process()
}

// SecureElement stores the node identity and root keys.
type SecureElement interface {
	SetDevEUI(e EUI64) error
	SetJoinEUI(e EUI64) error
	SetKey(id KeyID, k AES128Key) error
}

// Provision pushes key material into the secure element. The AppKey is also
// installed as the network root key. Any error leaves the node unable to join
// and callers treat it as fatal.
func Provision(se SecureElement, km KeyMaterial) error {
	if err := se.SetDevEUI(km.DevEUI); err != nil {
		return fmt.Errorf("set DevEUI: %w", err)
	}
	if err := se.SetJoinEUI(km.JoinEUI); err != nil {
		return fmt.Errorf("set JoinEUI: %w", err)
	}
	if err := se.SetKey(AppKey, km.AppKey); err != nil {
		return fmt.Errorf("set %s: %w", AppKey, err)
	}
	if err := se.SetKey(NwkKey, km.AppKey); err != nil {
		return fmt.Errorf("set %s: %w", NwkKey, err)
	}
	return nil
}
