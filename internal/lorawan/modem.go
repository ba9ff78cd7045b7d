package lorawan

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Modem drives a LoRaWAN modem speaking the LoRa-E5 style AT dialect
// ("AT+JOIN", "AT+MSGHEX", "+JOIN: Done", ...). It implements Middleware and
// SecureElement.
//
// A reader goroutine parses every line. The first line carrying the prefix of
// an in-flight command answers that command; join and uplink cycles are
// tracked until their "Done" line and then queued for Process.
type Modem struct {
	rw      io.ReadWriteCloser
	log     zerolog.Logger
	timeout time.Duration

	// cmdMu serialises commands on the wire.
	cmdMu sync.Mutex

	mu      sync.Mutex
	handler Handler
	waiter  *waiter
	events  []func(Handler)
	params  Params
	port    uint8
	appKey  *AES128Key
	tx      *txCycle
	closed  bool

	// joinStale is set when AT+JOIN timed out. The cycle the modem may
	// still run for it was already reported as a failure, so joinDrop
	// swallows its result.
	joining   bool
	joinOK    bool
	joinStale bool
	joinDrop  bool

	done chan struct{}
}

type waiter struct {
	prefix string
	ch     chan string
}

type txCycle struct {
	confirmed bool
	ack       bool
	port      uint8
	rx        *AppData
	rxParams  RxParams
}

// ModemOption configures a Modem.
type ModemOption func(*Modem)

// WithModemLogger sets the logger.
func WithModemLogger(l zerolog.Logger) ModemOption {
	return func(m *Modem) { m.log = l }
}

// WithCommandTimeout sets how long a command waits for its first response.
func WithCommandTimeout(d time.Duration) ModemOption {
	return func(m *Modem) { m.timeout = d }
}

// DefaultBaudRate is the factory baud rate of the modem UART.
const DefaultBaudRate = 9600

// OpenSerialModem opens the modem on a serial device.
func OpenSerialModem(device string, baud int, opts ...ModemOption) (*Modem, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open modem %s: %w", device, err)
	}
	return NewModem(port, opts...), nil
}

// NewModem starts a Modem on an open transport.
func NewModem(rw io.ReadWriteCloser, opts ...ModemOption) *Modem {
	m := &Modem{
		rw:      rw,
		log:     zerolog.Nop(),
		timeout: DefaultCommandTimeout,
		params:  DefaultParams(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	go m.readLoop()
	return m
}

// Close closes the transport and waits for the reader to exit.
func (m *Modem) Close() error {
	err := m.rw.Close()
	<-m.done
	if err != nil {
		return fmt.Errorf("close modem: %w", err)
	}
	return nil
}

// SetHandler registers the callback receiver.
func (m *Modem) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Ping checks that the modem answers.
func (m *Modem) Ping() error {
	_, err := m.command("AT", "AT")
	return err
}

// Configure sets activation mode, data rate, ADR and the default port.
func (m *Modem) Configure(p Params) error {
	if err := m.setMode(p.Activation); err != nil {
		return err
	}
	if _, err := m.command(fmt.Sprintf("AT+DR=%d", p.DataRate), "DR"); err != nil {
		return err
	}
	adr := "OFF"
	if p.ADR {
		adr = "ON"
	}
	if _, err := m.command("AT+ADR="+adr, "ADR"); err != nil {
		return err
	}
	if err := m.setPort(p.Port); err != nil {
		return err
	}
	m.mu.Lock()
	m.params = p
	m.mu.Unlock()
	return nil
}

func (m *Modem) setMode(a ActivationType) error {
	mode := "LWOTAA"
	if a == ActivationABP {
		mode = "LWABP"
	}
	_, err := m.command("AT+MODE="+mode, "MODE")
	return err
}

func (m *Modem) setPort(port uint8) error {
	if _, err := m.command(fmt.Sprintf("AT+PORT=%d", port), "PORT"); err != nil {
		return err
	}
	m.mu.Lock()
	m.port = port
	m.mu.Unlock()
	return nil
}

// Join starts a join. ABP needs no over-the-air exchange and reports success
// straight away.
func (m *Modem) Join(a ActivationType) error {
	if a == ActivationABP {
		m.queue(func(h Handler) {
			h.OnJoinResult(JoinParams{Success: true, Activation: ActivationABP})
		})
		return nil
	}

	body, err := m.command("AT+JOIN", "JOIN")
	if err != nil {
		return err
	}
	if body == "Joined already" {
		m.queue(func(h Handler) {
			h.OnJoinResult(JoinParams{Success: true, Activation: a})
		})
	}
	return nil
}

var (
	noBandRe = regexp.MustCompile(`^No band in (\d+)ms`)
	errorRe  = regexp.MustCompile(`ERROR\((-?\d+)\)`)
	rxRe     = regexp.MustCompile(`^PORT: (\d+); RX: "([0-9A-Fa-f ]*)"`)
	rxWinRe  = regexp.MustCompile(`^(RXWIN\d), RSSI (-?\d+), SNR (-?[\d.]+)`)
)

// Send queues an uplink. The cycle result arrives later through OnTxData.
func (m *Modem) Send(data *AppData, mt MsgType) (Status, time.Duration) {
	if len(data.Buffer) > MaxPayload {
		m.log.Warn().Int("len", len(data.Buffer)).Msg("payload too long")
		return StatusError, 0
	}

	m.mu.Lock()
	port := m.port
	m.mu.Unlock()
	if data.Port != port {
		if err := m.setPort(data.Port); err != nil {
			m.log.Error().Err(err).Uint8("port", data.Port).Msg("set port failed")
			return StatusError, 0
		}
	}

	prefix := "MSGHEX"
	if mt == Confirmed {
		prefix = "CMSGHEX"
	}
	line := fmt.Sprintf("AT+%s=\"%s\"", prefix, strings.ToUpper(hex.EncodeToString(data.Buffer)))

	m.cmdMu.Lock()
	body, err := m.exec(line, prefix)
	m.cmdMu.Unlock()
	if err != nil {
		m.log.Error().Err(err).Msg("send failed")
		return StatusError, 0
	}
	return sendStatus(body)
}

// sendStatus maps the first response line of a send command.
func sendStatus(body string) (Status, time.Duration) {
	switch {
	case body == "Start":
		return StatusSuccess, 0
	case strings.HasPrefix(body, "Please join network first"):
		return StatusNoNetworkJoined, 0
	}
	if sm := noBandRe.FindStringSubmatch(body); sm != nil {
		ms, _ := strconv.Atoi(sm[1])
		return StatusDutyCycleRestricted, time.Duration(ms) * time.Millisecond
	}
	if sm := errorRe.FindStringSubmatch(body); sm != nil {
		code, _ := strconv.Atoi(sm[1])
		if code < 0 {
			code = -code
		}
		return StatusError + Status(code), 0
	}
	return StatusError, 0
}

// Process delivers queued join and uplink results in arrival order.
func (m *Modem) Process() {
	m.mu.Lock()
	events := m.events
	m.events = nil
	h := m.handler
	m.mu.Unlock()

	if h == nil {
		return
	}
	for _, ev := range events {
		ev(h)
	}
}

// SetDevEUI writes the device EUI.
func (m *Modem) SetDevEUI(e EUI64) error {
	_, err := m.command(fmt.Sprintf("AT+ID=DevEui,\"%s\"", e), "ID")
	return err
}

// SetJoinEUI writes the join (application) EUI.
func (m *Modem) SetJoinEUI(e EUI64) error {
	_, err := m.command(fmt.Sprintf("AT+ID=AppEui,\"%s\"", e), "ID")
	return err
}

// SetKey writes a root key. The modem runs LoRaWAN 1.0.x with a single root
// key, so NwkKey must equal the AppKey already written.
func (m *Modem) SetKey(id KeyID, k AES128Key) error {
	switch id {
	case AppKey:
		if _, err := m.command(fmt.Sprintf("AT+KEY=APPKEY,\"%s\"", k), "KEY"); err != nil {
			return err
		}
		m.mu.Lock()
		m.appKey = &k
		m.mu.Unlock()
		return nil
	case NwkKey:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.appKey == nil || *m.appKey != k {
			return fmt.Errorf("set %s: modem supports a single root key equal to %s", NwkKey, AppKey)
		}
		return nil
	default:
		return fmt.Errorf("unknown key slot %d", int(id))
	}
}

// command runs one command and rejects error and busy responses.
func (m *Modem) command(line, prefix string) (string, error) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	body, err := m.exec(line, prefix)
	if err != nil {
		return "", err
	}
	if strings.Contains(body, "busy") {
		return body, fmt.Errorf("%s: %w", prefix, ErrModemBusy)
	}
	if errorRe.MatchString(body) {
		return body, fmt.Errorf("%s: modem returned %s", prefix, body)
	}
	return body, nil
}

// exec writes line and waits for the first response with prefix.
// Callers hold cmdMu.
func (m *Modem) exec(line, prefix string) (string, error) {
	w := &waiter{prefix: prefix, ch: make(chan string, 1)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.waiter = w
	m.mu.Unlock()

	m.log.Debug().Str("cmd", line).Msg("modem tx")
	if _, err := io.WriteString(m.rw, line+"\r\n"); err != nil {
		m.clearWaiter(w)
		return "", fmt.Errorf("write %s: %w", prefix, err)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case body, ok := <-w.ch:
		if !ok {
			return "", ErrClosed
		}
		return body, nil
	case <-timer.C:
		m.expireWaiter(w)
		return "", fmt.Errorf("%s: %w", prefix, ErrTimeout)
	}
}

func (m *Modem) clearWaiter(w *waiter) {
	m.mu.Lock()
	if m.waiter == w {
		m.waiter = nil
	}
	m.mu.Unlock()
}

// expireWaiter clears a timed-out waiter. A join that timed out is marked
// stale in the same critical section, so a late cycle can't slip through.
func (m *Modem) expireWaiter(w *waiter) {
	m.mu.Lock()
	if m.waiter == w {
		m.waiter = nil
		if w.prefix == "JOIN" {
			m.joinStale = true
		}
	}
	m.mu.Unlock()
}

func (m *Modem) readLoop() {
	defer close(m.done)

	sc := bufio.NewScanner(m.rw)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m.log.Debug().Str("line", line).Msg("modem rx")
		m.handleLine(line)
	}

	m.mu.Lock()
	m.closed = true
	w := m.waiter
	m.waiter = nil
	m.mu.Unlock()
	if w != nil {
		close(w.ch)
	}
}

// splitResponse splits "+JOIN: Done" into "JOIN" and "Done".
func splitResponse(line string) (prefix, body string) {
	if !strings.HasPrefix(line, "+") {
		return "", line
	}
	prefix, body, _ = strings.Cut(line[1:], ":")
	return prefix, strings.TrimSpace(body)
}

func (m *Modem) handleLine(line string) {
	prefix, body := splitResponse(line)

	m.mu.Lock()
	var answered bool
	if w := m.waiter; w != nil && w.prefix == prefix {
		m.waiter = nil
		w.ch <- body
		answered = true
	}
	var notify bool
	switch prefix {
	case "JOIN":
		notify = m.joinLine(body, answered)
	case "MSGHEX":
		notify = m.msgLine(false, body)
	case "CMSGHEX":
		notify = m.msgLine(true, body)
	}
	h := m.handler
	m.mu.Unlock()

	if notify && h != nil {
		h.OnMacProcess()
	}
}

// joinLine tracks a join cycle. answered is true when the line was the
// response to a pending AT+JOIN. Called with mu held.
func (m *Modem) joinLine(body string, answered bool) bool {
	if answered {
		m.joinStale = false
	}
	switch {
	case body == "Start":
		m.joining = true
		m.joinOK = false
		m.joinDrop = m.joinStale
		m.joinStale = false
	case body == "Network joined":
		m.joinOK = true
	case body == "Join failed":
		m.joinOK = false
	case body == "Joined already":
		m.joinStale = false
	case body == "Done" && m.joining:
		m.joining = false
		if m.joinDrop {
			m.joinDrop = false
			m.log.Warn().Bool("joined", m.joinOK).Msg("dropping join cycle that outlived its command")
			return false
		}
		p := JoinParams{Success: m.joinOK, Activation: m.params.Activation}
		m.events = append(m.events, func(h Handler) { h.OnJoinResult(p) })
		return true
	}
	return false
}

// msgLine tracks an uplink cycle. Called with mu held.
func (m *Modem) msgLine(confirmed bool, body string) bool {
	if body == "Start" {
		m.tx = &txCycle{confirmed: confirmed, port: m.port}
		return false
	}
	tx := m.tx
	if tx == nil {
		return false
	}

	switch {
	case body == "ACK Received":
		tx.ack = true
	case rxRe.MatchString(body):
		sm := rxRe.FindStringSubmatch(body)
		port, _ := strconv.Atoi(sm[1])
		buf, err := hex.DecodeString(strings.ReplaceAll(sm[2], " ", ""))
		if err != nil {
			m.log.Warn().Err(err).Str("line", body).Msg("bad downlink payload")
			return false
		}
		tx.rx = &AppData{Port: uint8(port), Buffer: buf}
		tx.rxParams.Port = uint8(port)
	case rxWinRe.MatchString(body):
		sm := rxWinRe.FindStringSubmatch(body)
		rssi, _ := strconv.Atoi(sm[2])
		snr, _ := strconv.ParseFloat(sm[3], 32)
		tx.rxParams.Window = sm[1]
		tx.rxParams.RSSI = int16(rssi)
		tx.rxParams.SNR = float32(snr)
	case body == "Done":
		m.tx = nil
		txp := TxParams{
			Confirmed:   tx.confirmed,
			AckReceived: tx.ack,
			Port:        tx.port,
			DataRate:    m.params.DataRate,
			TxPower:     m.params.TxPower,
		}
		m.events = append(m.events, func(h Handler) { h.OnTxData(txp) })
		if tx.rx != nil {
			data, rxp := tx.rx, tx.rxParams
			m.events = append(m.events, func(h Handler) { h.OnRxData(data, rxp) })
		}
		return true
	}
	return false
}

func (m *Modem) queue(ev func(Handler)) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h.OnMacProcess()
	}
}
