// Package lorawan defines the contract between the node controller and the
// LoRaWAN stack, and provides an AT-command modem implementation of it.
//
// The stack owns MAC timing, encryption and regional parameters. The
// controller only joins, sends and reacts to the callbacks in Handler.
package lorawan

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActivationType selects how the node joins the network.
type ActivationType int

const (
	ActivationOTAA ActivationType = iota
	ActivationABP
)

func (a ActivationType) String() string {
	switch a {
	case ActivationOTAA:
		return "OTAA"
	case ActivationABP:
		return "ABP"
	default:
		return fmt.Sprintf("ActivationType(%d)", int(a))
	}
}

// ParseActivation parses "otaa" or "abp" (case-insensitive).
func ParseActivation(s string) (ActivationType, error) {
	switch strings.ToLower(s) {
	case "otaa":
		return ActivationOTAA, nil
	case "abp":
		return ActivationABP, nil
	default:
		return 0, fmt.Errorf("unknown activation type %q", s)
	}
}

// MsgType is the uplink confirmation mode.
type MsgType int

const (
	Unconfirmed MsgType = iota
	Confirmed
)

func (m MsgType) String() string {
	if m == Confirmed {
		return "CONFIRMED"
	}
	return "UNCONFIRMED"
}

// Status is the immediate result of Send.
// Values above StatusError carry a stack-specific error code.
type Status int

const (
	StatusSuccess Status = iota
	StatusNoNetworkJoined
	StatusDutyCycleRestricted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNoNetworkJoined:
		return "NO_NETWORK_JOINED"
	case StatusDutyCycleRestricted:
		return "DUTY_CYCLE_RESTRICTED"
	default:
		return fmt.Sprintf("ERROR(%d)", int(s))
	}
}

// MaxPayload is the largest application payload the stack accepts.
const MaxPayload = 242

// AppData is an application payload and its port.
type AppData struct {
	Port   uint8
	Buffer []byte
}

// JoinParams is delivered with the result of a join attempt.
type JoinParams struct {
	Success    bool
	Activation ActivationType
}

// TxParams is delivered after an uplink cycle completes.
type TxParams struct {
	Confirmed   bool
	AckReceived bool
	Port        uint8
	DataRate    uint8
	TxPower     int8
}

// RxParams describes a received downlink.
type RxParams struct {
	Port uint8
	RSSI int16
	SNR  float32
	// Window is the receive window label reported by the stack, e.g. RXWIN1.
	Window string
}

// Params configures the stack before joining.
type Params struct {
	Activation ActivationType
	MsgType    MsgType
	DataRate   uint8
	ADR        bool
	// Port is the default application port.
	Port uint8
	// TxPower is reported in TxParams when the stack does not report it.
	TxPower int8
}

// DefaultParams returns OTAA, unconfirmed, DR0, ADR on, port 2, 14 dBm.
func DefaultParams() Params {
	return Params{
		Activation: ActivationOTAA,
		MsgType:    Unconfirmed,
		DataRate:   0,
		ADR:        true,
		Port:       2,
		TxPower:    14,
	}
}

// Sentinel errors.
var (
	ErrModemBusy = errors.New("lorawan: modem busy")
	ErrTimeout   = errors.New("lorawan: timeout waiting for modem")
	ErrClosed    = errors.New("lorawan: modem closed")
)

// DefaultCommandTimeout bounds how long a command waits for its first response.
const DefaultCommandTimeout = 3 * time.Second

// EUI64 is an 8-byte IEEE identifier (DevEUI or JoinEUI).
type EUI64 [8]byte

// ParseEUI64 parses 16 hex digits, optionally separated by ':' or '-'.
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	if err := parseHex(s, e[:]); err != nil {
		return e, fmt.Errorf("parse EUI64: %w", err)
	}
	return e, nil
}

func (e EUI64) String() string { return strings.ToUpper(hex.EncodeToString(e[:])) }

// IsZero reports whether the identifier is all zeros.
func (e EUI64) IsZero() bool { return e == EUI64{} }

// AES128Key is a 16-byte root key.
type AES128Key [16]byte

// ParseAES128Key parses 32 hex digits.
func ParseAES128Key(s string) (AES128Key, error) {
	var k AES128Key
	if err := parseHex(s, k[:]); err != nil {
		return k, fmt.Errorf("parse AES128 key: %w", err)
	}
	return k, nil
}

func (k AES128Key) String() string { return strings.ToUpper(hex.EncodeToString(k[:])) }

// IsZero reports whether the key is all zeros.
func (k AES128Key) IsZero() bool { return k == AES128Key{} }

func parseHex(s string, dst []byte) error {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	if len(clean) != 2*len(dst) {
		return fmt.Errorf("want %d hex digits, got %d", 2*len(dst), len(clean))
	}
	if _, err := hex.Decode(dst, []byte(clean)); err != nil {
		return err
	}
	return nil
}

// KeyID names a root key slot in the secure element.
type KeyID int

const (
	AppKey KeyID = iota
	NwkKey
)

func (k KeyID) String() string {
	if k == NwkKey {
		return "NWK_KEY"
	}
	return "APP_KEY"
}

// KeyMaterial is the provisioned identity of the node.
type KeyMaterial struct {
	DevEUI  EUI64
	JoinEUI EUI64
	AppKey  AES128Key
}
