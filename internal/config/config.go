// Package config loads the node configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/lora-node/internal/adc"
	"github.com/sweeney/lora-node/internal/app"
	"github.com/sweeney/lora-node/internal/gpio"
	"github.com/sweeney/lora-node/internal/logic"
	"github.com/sweeney/lora-node/internal/lorawan"
	"github.com/sweeney/lora-node/internal/node"
	"github.com/sweeney/lora-node/internal/power"
)

// Environment overrides.
const (
	EnvMQTTBroker  = "LORA_NODE_MQTT_BROKER"
	EnvLogLevel    = "LORA_NODE_LOG_LEVEL"
	EnvModemDevice = "LORA_NODE_MODEM_DEVICE"
)

// Config represents the node configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	ADC     ADCConfig     `yaml:"adc"`
	Power   PowerConfig   `yaml:"power"`
	Modem   ModemConfig   `yaml:"modem"`
	LoRaWAN LoRaWANConfig `yaml:"lorawan"`
	Node    NodeConfig    `yaml:"node"`
	App     AppConfig     `yaml:"app"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Web     WebConfig     `yaml:"web"`
	Store   StoreConfig   `yaml:"store"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// GPIOConfig holds the line offsets
type GPIOConfig struct {
	Chip         string `yaml:"chip"`
	PinButton    int    `yaml:"pin_button"`
	PinMeasureEn int    `yaml:"pin_measure_en"`
	// PinLED is the indicator line, negative to disable.
	PinLED int `yaml:"pin_led"`
}

// ADCConfig selects the IIO device and channels
type ADCConfig struct {
	Device        string  `yaml:"device"`
	SenseChannel  int     `yaml:"sense_channel"`
	SupplyChannel int     `yaml:"supply_channel"`

	// Scale is mV per count for both channels. Zero reads in_voltageN_scale.
	Scale float64 `yaml:"scale"`
}

// PowerConfig holds the external supply detection thresholds
type PowerConfig struct {
	Low    uint16        `yaml:"low"`
	High   uint16        `yaml:"high"`
	Settle time.Duration `yaml:"settle"`

	// External overrides the detected classification when set.
	External *bool `yaml:"external"`
}

// ModemConfig represents the serial modem
type ModemConfig struct {
	Device         string        `yaml:"device"`
	BaudRate       int           `yaml:"baud_rate"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// LoRaWANConfig represents the MAC parameters
type LoRaWANConfig struct {
	Activation string `yaml:"activation"`
	Confirmed  bool   `yaml:"confirmed"`
	DataRate   uint8  `yaml:"data_rate"`
	ADR        bool   `yaml:"adr"`
	Port       uint8  `yaml:"port"`
	TxPower    int8   `yaml:"tx_power"`
	JoinBudget uint8  `yaml:"join_budget"`
}

// NodeConfig holds the button timings
type NodeConfig struct {
	DebouncePeriod time.Duration `yaml:"debounce_period"`
	ShortAction    time.Duration `yaml:"short_action"`
	Reset          time.Duration `yaml:"reset"`
}

// AppConfig represents the application layer
type AppConfig struct {
	DutyCycle time.Duration `yaml:"duty_cycle"`
}

// MQTTConfig represents the telemetry broker. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// WebConfig represents the status server. An empty address disables it.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig locates the sqlite database
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	p := lorawan.DefaultParams()
	th := power.DefaultThresholds()
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		GPIO: GPIOConfig{
			Chip:         gpio.DefaultChip,
			PinButton:    gpio.DefaultPinButton,
			PinMeasureEn: gpio.DefaultPinMeasureEn,
			PinLED:       gpio.DefaultPinLED,
		},
		ADC: ADCConfig{
			Device:        adc.DefaultDevice,
			SenseChannel:  0,
			SupplyChannel: 1,
		},
		Power: PowerConfig{Low: th.Low, High: th.High, Settle: th.Settle},
		Modem: ModemConfig{
			Device:         "/dev/ttyAMA0",
			BaudRate:       lorawan.DefaultBaudRate,
			CommandTimeout: lorawan.DefaultCommandTimeout,
		},
		LoRaWAN: LoRaWANConfig{
			Activation: p.Activation.String(),
			DataRate:   p.DataRate,
			ADR:        p.ADR,
			Port:       p.Port,
			TxPower:    p.TxPower,
			JoinBudget: logic.DefaultJoinAttempts,
		},
		Node: NodeConfig{
			DebouncePeriod: node.DefaultDebouncePeriod,
			ShortAction:    logic.DefaultShortActionBound,
			Reset:          logic.DefaultResetBound,
		},
		App:   AppConfig{DutyCycle: app.DefaultDutyCycle},
		MQTT:  MQTTConfig{ClientID: "lora-node", Heartbeat: 15 * time.Minute},
		Web:   WebConfig{Addr: ":80"},
		Store: StoreConfig{Path: "/var/lib/lora-node/node.db"},
	}
}

// Load loads configuration from file. An empty filename yields the defaults.
// Keys absent from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if broker := os.Getenv(EnvMQTTBroker); broker != "" {
		c.MQTT.Broker = broker
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
	if dev := os.Getenv(EnvModemDevice); dev != "" {
		c.Modem.Device = dev
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := lorawan.ParseActivation(c.LoRaWAN.Activation); err != nil {
		errs = append(errs, err)
	}
	if c.LoRaWAN.Port == 0 || c.LoRaWAN.Port > 223 {
		errs = append(errs, fmt.Errorf("lorawan port out of range: %d", c.LoRaWAN.Port))
	}
	if c.LoRaWAN.Port == app.CommandPort {
		errs = append(errs, fmt.Errorf("lorawan port %d is reserved for downlink commands", app.CommandPort))
	}
	if err := c.NodeConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.PowerThresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.App.DutyCycle < app.MinDutyCycle {
		errs = append(errs, fmt.Errorf("duty cycle %v below minimum %v", c.App.DutyCycle, app.MinDutyCycle))
	}
	if c.Modem.Device == "" {
		errs = append(errs, errors.New("modem device is required"))
	}
	if c.Modem.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("modem baud rate must be positive: %d", c.Modem.BaudRate))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative: %v", c.MQTT.Heartbeat))
	}
	return errors.Join(errs...)
}

// NodeConfig returns the controller configuration.
func (c *Config) NodeConfig() node.Config {
	act, _ := lorawan.ParseActivation(c.LoRaWAN.Activation)
	return node.Config{
		Activation:     act,
		MsgType:        c.msgType(),
		Port:           c.LoRaWAN.Port,
		JoinBudget:     c.LoRaWAN.JoinBudget,
		DebouncePeriod: c.Node.DebouncePeriod,
		Thresholds: logic.Thresholds{
			ShortAction: c.Node.ShortAction,
			Reset:       c.Node.Reset,
		},
	}
}

// LoRaWANParams returns the MAC parameters pushed to the modem.
func (c *Config) LoRaWANParams() lorawan.Params {
	act, _ := lorawan.ParseActivation(c.LoRaWAN.Activation)
	return lorawan.Params{
		Activation: act,
		MsgType:    c.msgType(),
		DataRate:   c.LoRaWAN.DataRate,
		ADR:        c.LoRaWAN.ADR,
		Port:       c.LoRaWAN.Port,
		TxPower:    c.LoRaWAN.TxPower,
	}
}

// PowerThresholds returns the power monitor thresholds.
func (c *Config) PowerThresholds() power.Thresholds {
	return power.Thresholds{Low: c.Power.Low, High: c.Power.High, Settle: c.Power.Settle}
}

// AppConfig returns the application configuration.
func (c *Config) AppConfig() app.Config {
	return app.Config{
		DutyCycle: c.App.DutyCycle,
		DataRate:  c.LoRaWAN.DataRate,
		TxPower:   c.LoRaWAN.TxPower,
	}
}

func (c *Config) msgType() lorawan.MsgType {
	if c.LoRaWAN.Confirmed {
		return lorawan.Confirmed
	}
	return lorawan.Unconfirmed
}
