// Command lora-node runs the LoRaWAN button node: it joins the network, turns
// button presses into uplinks and publishes node events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/lora-node/internal/adc"
	"github.com/sweeney/lora-node/internal/app"
	"github.com/sweeney/lora-node/internal/config"
	"github.com/sweeney/lora-node/internal/gpio"
	"github.com/sweeney/lora-node/internal/indicator"
	"github.com/sweeney/lora-node/internal/logic"
	"github.com/sweeney/lora-node/internal/lorawan"
	"github.com/sweeney/lora-node/internal/mqtt"
	"github.com/sweeney/lora-node/internal/node"
	"github.com/sweeney/lora-node/internal/power"
	"github.com/sweeney/lora-node/internal/sched"
	"github.com/sweeney/lora-node/internal/status"
	"github.com/sweeney/lora-node/internal/store"
	"github.com/sweeney/lora-node/internal/web"
)

// exitRestart is the exit code asking the supervisor for a restart.
const exitRestart = 3

// eventBuffer bounds the queue between the scheduler and the run loop.
const eventBuffer = 64

var errRestart = errors.New("restart requested")

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults when empty)")
	provision := flag.Bool("provision", false, "Store key material and exit")
	devEUI := flag.String("dev-eui", "", "DevEUI in hex, with -provision")
	joinEUI := flag.String("join-eui", "", "JoinEUI in hex, with -provision")
	appKey := flag.String("app-key", "", "AppKey in hex, with -provision")
	printState := flag.Bool("print-state", false, "Print button level and power source and exit")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg.Log)

	switch {
	case *provision:
		err = runProvision(cfg.Store.Path, *devEUI, *joinEUI, *appKey)
	case *printState:
		err = runPrintState(cfg, os.Stdout)
	default:
		err = run(cfg)
	}
	if errors.Is(err, errRestart) {
		log.Warn().Msg("exiting for restart")
		os.Exit(exitRestart)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func setupLogging(c config.LogConfig) {
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func parseKeyMaterial(devEUI, joinEUI, appKey string) (lorawan.KeyMaterial, error) {
	var km lorawan.KeyMaterial
	var errs []error
	var err error
	if km.DevEUI, err = lorawan.ParseEUI64(devEUI); err != nil {
		errs = append(errs, fmt.Errorf("dev-eui: %w", err))
	}
	if km.JoinEUI, err = lorawan.ParseEUI64(joinEUI); err != nil {
		errs = append(errs, fmt.Errorf("join-eui: %w", err))
	}
	if km.AppKey, err = lorawan.ParseAES128Key(appKey); err != nil {
		errs = append(errs, fmt.Errorf("app-key: %w", err))
	}
	return km, errors.Join(errs...)
}

func runProvision(path, devEUI, joinEUI, appKey string) error {
	km, err := parseKeyMaterial(devEUI, joinEUI, appKey)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SaveKeys(ctx, km); err != nil {
		return fmt.Errorf("save keys: %w", err)
	}
	log.Info().Stringer("dev_eui", km.DevEUI).Str("path", path).Msg("key material stored")
	return nil
}

func runPrintState(cfg *config.Config, w io.Writer) error {
	button, err := gpio.NewRealButton(cfg.GPIO.Chip, cfg.GPIO.PinButton)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer button.Close()

	high, err := button.Level()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}

	reader, err := adc.NewIIO(cfg.ADC.Device, cfg.ADC.SenseChannel, cfg.ADC.SupplyChannel, cfg.ADC.Scale)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	monitor := power.NewMonitor(reader, gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.PinMeasureEn), cfg.PowerThresholds(), power.WithLogger(zerolog.Nop()))
	external, err := monitor.Detect()
	if err != nil {
		return fmt.Errorf("detect power: %w", err)
	}
	supply, err := monitor.SupplyLevel()
	if err != nil {
		return fmt.Errorf("read supply: %w", err)
	}

	fmt.Fprintf(w, "button: %s, power: %s, supply: %d\n", levelString(high), powerString(external), supply)
	return nil
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reset, err := st.ConsumeFactoryReset(ctx)
	if err != nil {
		return fmt.Errorf("consume factory reset: %w", err)
	}
	if reset {
		log.Warn().Msg("factory reset applied, stored settings cleared")
	}

	appCfg := cfg.AppConfig()
	if d, ok, err := st.DutyCycle(ctx); err != nil {
		log.Warn().Err(err).Msg("stored duty cycle unreadable, using configured value")
	} else if ok {
		appCfg.DutyCycle = d
	}

	keys, err := st.LoadKeys(ctx)
	if errors.Is(err, store.ErrNotProvisioned) {
		return fmt.Errorf("%w: run with -provision first", err)
	}
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}

	modem, err := lorawan.OpenSerialModem(cfg.Modem.Device, cfg.Modem.BaudRate,
		lorawan.WithModemLogger(log.With().Str("component", "modem").Logger()),
		lorawan.WithCommandTimeout(cfg.Modem.CommandTimeout))
	if err != nil {
		return fmt.Errorf("open modem: %w", err)
	}
	defer modem.Close()

	if err := modem.Ping(); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}
	if err := lorawan.Provision(modem, keys); err != nil {
		return fmt.Errorf("provision modem: %w", err)
	}
	if err := modem.Configure(cfg.LoRaWANParams()); err != nil {
		return fmt.Errorf("configure modem: %w", err)
	}

	button, err := gpio.NewRealButton(cfg.GPIO.Chip, cfg.GPIO.PinButton)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer button.Close()

	reader, err := adc.NewIIO(cfg.ADC.Device, cfg.ADC.SenseChannel, cfg.ADC.SupplyChannel, cfg.ADC.Scale)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	monitor := power.NewMonitor(reader, gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.PinMeasureEn), cfg.PowerThresholds(),
		power.WithLogger(log.With().Str("component", "power").Logger()))
	if _, err := monitor.Detect(); err != nil {
		log.Error().Err(err).Msg("power detection failed, assuming battery")
	}
	if ext := cfg.Power.External; ext != nil {
		log.Info().Bool("external", *ext).Msg("power source set by configuration")
		monitor.SetPresent(*ext)
	}

	s := sched.New(sched.WithLogger(log.With().Str("component", "sched").Logger()))

	var led gpio.Output
	if cfg.GPIO.PinLED >= 0 {
		led = gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.PinLED)
	}
	ind := indicator.NewTimed(s, led, log.With().Str("component", "indicator").Logger())
	if err := ind.Init(); err != nil {
		return fmt.Errorf("init indicator: %w", err)
	}
	defer ind.Close()

	application := app.New(appCfg, s, st, log.With().Str("component", "app").Logger())

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, keys, appCfg.DutyCycle))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	if v, err := monitor.SupplyLevel(); err == nil {
		tracker.SetSupplyMv(v)
	}
	application.OnDutyCycleChange(tracker.SetDutyCycle)

	var publisher mqtt.Publisher = nopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, mqtt.ClientID(cfg.MQTT.ClientID),
			mqtt.WithLogger(log.With().Str("component", "mqtt").Logger()))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	} else {
		log.Warn().Msg("no mqtt broker configured, telemetry disabled")
	}
	defer publisher.Close()

	events := make(chan logic.Event, eventBuffer)
	restart := make(chan string, 1)

	ctrl := node.New(cfg.NodeConfig(), node.Deps{
		Scheduler:  s,
		Middleware: modem,
		Button:     button,
		Power:      monitor,
		Clock:      node.NewSystemClock(),
		Indicator:  ind,
		Store:      st,
		Restarter:  chanRestarter(restart),
		Hooks:      application,
		Framer:     application,
		Log:        log.With().Str("component", "node").Logger(),
		OnEvent:    queueEvent(events),
		OnState:    tracker.Update,
	})
	application.Bind(ctrl)
	ctrl.Init()
	s.Post(ctrl.Start)

	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()
	// Stop the scheduler before the hardware is released.
	defer cancel()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Error().Err(err).Msg("failed to publish startup event")
	}

	if cfg.Web.Addr != "" {
		srv := web.New(cfg.Web.Addr, tracker, application, log.With().Str("component", "web").Logger())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.Web.Addr).Msg("http status server listening")
	}

	log.Info().
		Stringer("dev_eui", keys.DevEUI).
		Str("activation", cfg.LoRaWAN.Activation).
		Dur("duty_cycle", appCfg.DutyCycle).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.MQTT.Heartbeat).
		Msg("started")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	refreshSupply := func() {
		s.Post(func() {
			v, err := ctrl.SupplyLevel()
			if err != nil {
				log.Warn().Err(err).Msg("supply read failed")
				return
			}
			tracker.SetSupplyMv(v)
		})
	}

	l := &loop{
		events:      events,
		publisher:   publisher,
		mqttStatus:  mqttStatus,
		tracker:     tracker,
		heartbeat:   cfg.MQTT.Heartbeat,
		now:         time.Now,
		tick:        ticker.C,
		sig:         sigCh,
		restart:     restart,
		onHeartbeat: refreshSupply,
	}
	return l.run()
}

// loop forwards node events to MQTT and owns the process lifecycle events.
type loop struct {
	events      <-chan logic.Event
	publisher   mqtt.Publisher
	mqttStatus  mqtt.ConnectionStatus
	tracker     *status.Tracker
	heartbeat   time.Duration
	now         func() time.Time
	tick        <-chan time.Time
	sig         <-chan os.Signal
	restart     <-chan string
	onHeartbeat func() // optional, runs after each heartbeat
}

func (l *loop) run() error {
	hb := logic.NewHeartbeat(l.now())
	var counts logic.EventCounts

	for {
		select {
		case s := <-l.sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			l.drain(&counts)
			l.publishLifecycle("SHUTDOWN", signalName(s))
			return nil

		case reason := <-l.restart:
			log.Warn().Str("reason", reason).Msg("restart requested")
			l.drain(&counts)
			l.publishLifecycle("SHUTDOWN", "RESTART")
			return errRestart

		case e := <-l.events:
			l.forward(e, &counts)

		case <-l.tick:
			l.refreshConnection()
			snap := l.tracker.Snapshot()
			data := hb.Check(l.now(), l.heartbeat, snap.Ready(), counts)
			if data == nil {
				continue
			}
			log.Info().
				Dur("uptime", data.Uptime).
				Int("short", data.Counts.ShortPresses).
				Int("tx_ok", data.Counts.TxAccepted).
				Int("tx_rejected", data.Counts.TxRejected).
				Msg("heartbeat")

			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			snap = l.tracker.Snapshot()
			err := l.publisher.PublishSystem(mqtt.SystemEvent{
				Timestamp:  data.Timestamp,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			})
			if err != nil {
				log.Error().Err(err).Msg("heartbeat publish error")
			}
			if l.onHeartbeat != nil {
				l.onHeartbeat()
			}
		}
	}
}

func (l *loop) forward(e logic.Event, counts *logic.EventCounts) {
	counts.Add(e)
	log.Debug().Str("type", string(e.Type)).Msg("event")
	if err := l.publisher.Publish(e); err != nil {
		// Don't crash on publish failure
		log.Error().Err(err).Str("type", string(e.Type)).Msg("publish error")
	}
}

// drain publishes whatever the scheduler queued before the loop stops.
func (l *loop) drain(counts *logic.EventCounts) {
	for {
		select {
		case e := <-l.events:
			l.forward(e, counts)
		default:
			return
		}
	}
}

func (l *loop) refreshConnection() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) publishLifecycle(event, reason string) {
	l.refreshConnection()
	snap := l.tracker.Snapshot()
	err := l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Str("reason", reason).Msg("published system event")
}

// queueEvent returns an OnEvent hook. The scheduler must never block on
// telemetry, so events are dropped when the run loop falls behind.
func queueEvent(events chan<- logic.Event) func(logic.Event) {
	return func(e logic.Event) {
		select {
		case events <- e:
		default:
			log.Warn().Str("type", string(e.Type)).Msg("event queue full, dropping")
		}
	}
}

// chanRestarter hands restart requests to the run loop.
type chanRestarter chan string

func (r chanRestarter) Restart(reason string) {
	select {
	case r <- reason:
	default:
	}
}

// nopPublisher stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(logic.Event) error            { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }

func statusConfig(cfg *config.Config, keys lorawan.KeyMaterial, dutyCycle time.Duration) status.Config {
	nc := cfg.NodeConfig()
	return status.Config{
		DevEUI:        keys.DevEUI.String(),
		Activation:    nc.Activation.String(),
		MsgType:       nc.MsgType.String(),
		Port:          nc.Port,
		DutyCycleS:    int64(dutyCycle / time.Second),
		DebounceMs:    nc.DebouncePeriod.Milliseconds(),
		ShortActionMs: nc.Thresholds.ShortAction.Milliseconds(),
		ResetMs:       nc.Thresholds.Reset.Milliseconds(),
		HeartbeatMs:   cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.Web.Addr,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func levelString(high bool) string {
	if high {
		return "RELEASED"
	}
	return "PRESSED"
}

func powerString(external bool) string {
	if external {
		return "EXTERNAL"
	}
	return "BATTERY"
}
