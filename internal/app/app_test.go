package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/logic"
	"github.com/sweeney/lora-node/internal/lorawan"
	"github.com/sweeney/lora-node/internal/payload"
	"github.com/sweeney/lora-node/internal/sched"
)

type fakeNode struct {
	reasons   []logic.TxReason
	outcomes  []logic.SendOutcome
	joins     int
	supply    uint16
	supplyErr error
}

func (f *fakeNode) RequestSend(reason logic.TxReason) logic.SendOutcome {
	f.reasons = append(f.reasons, reason)
	if len(f.outcomes) == 0 {
		return logic.SendOutcome{Kind: logic.OutcomeAccepted}
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out
}

func (f *fakeNode) Join() { f.joins++ }

func (f *fakeNode) SupplyLevel() (uint16, error) { return f.supply, f.supplyErr }

type fakeSettings struct {
	saved []time.Duration
	err   error
}

func (f *fakeSettings) SetDutyCycle(ctx context.Context, d time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, d)
	return nil
}

type fixture struct {
	m     *sched.Manual
	s     *sched.Scheduler
	node  *fakeNode
	store *fakeSettings
	app   *App
}

func newFixture(cfg Config) *fixture {
	m := sched.NewManual()
	s := sched.New(sched.WithAfterFunc(m.AfterFunc))
	f := &fixture{m: m, s: s, node: &fakeNode{supply: 3300}, store: &fakeSettings{}}
	f.app = New(cfg, s, f.store, zerolog.Nop())
	f.app.Bind(f.node)
	return f
}

// run advances manual time in 100 ms steps, draining the scheduler each step.
func (f *fixture) run(d time.Duration) {
	const step = 100 * time.Millisecond
	for i := time.Duration(0); i < d; i += step {
		f.m.Advance(step)
		f.s.RunPending()
	}
}

func TestCyclicUplink(t *testing.T) {
	f := newFixture(Config{DutyCycle: time.Minute})
	f.run(5 * time.Minute)
	if len(f.node.reasons) != 0 {
		t.Fatal("cyclic uplink must wait for PostJoin")
	}

	f.app.PostJoin()
	f.run(59 * time.Second)
	if len(f.node.reasons) != 0 {
		t.Fatalf("sent early: %v", f.node.reasons)
	}
	f.run(time.Second)
	f.run(time.Minute)
	if len(f.node.reasons) != 2 {
		t.Fatalf("expected 2 cyclic uplinks, got %d", len(f.node.reasons))
	}
	for _, r := range f.node.reasons {
		if r != logic.TxReasonTimerEvent {
			t.Errorf("reason: got %v, want TIMER", r)
		}
	}
}

func TestDefaultDutyCycle(t *testing.T) {
	f := newFixture(Config{})
	if f.app.DutyCycle() != DefaultDutyCycle {
		t.Errorf("got %v, want %v", f.app.DutyCycle(), DefaultDutyCycle)
	}
}

func TestCyclicUplinkDeferredDuringPress(t *testing.T) {
	f := newFixture(Config{DutyCycle: time.Minute})
	f.app.PostJoin()

	f.app.DisableIRQs()
	f.run(90 * time.Second)
	if len(f.node.reasons) != 0 {
		t.Fatal("cyclic uplink must be deferred while input is masked")
	}

	f.app.EnableIRQs()
	if len(f.node.reasons) != 1 {
		t.Fatalf("deferred uplink not flushed: %v", f.node.reasons)
	}
	f.app.EnableIRQs()
	if len(f.node.reasons) != 1 {
		t.Error("flush must happen once")
	}

	f.run(time.Minute)
	if len(f.node.reasons) != 2 {
		t.Errorf("cycle not restarted after flush: %d uplinks", len(f.node.reasons))
	}
}

func TestButtonUplink(t *testing.T) {
	f := newFixture(Config{})
	f.app.UserButtonEvent()
	if len(f.node.reasons) != 1 || f.node.reasons[0] != logic.TxReasonUserButtonEvent {
		t.Errorf("reasons: %v", f.node.reasons)
	}
}

func TestDutyCycleRestrictedRetry(t *testing.T) {
	f := newFixture(Config{})
	f.node.outcomes = []logic.SendOutcome{{Kind: logic.OutcomeDutyCycleRestricted, NextTxIn: 10 * time.Second}}

	f.app.UserButtonEvent()
	f.run(14900 * time.Millisecond)
	if len(f.node.reasons) != 1 {
		t.Fatalf("retried early: %v", f.node.reasons)
	}
	f.run(100 * time.Millisecond)
	if len(f.node.reasons) != 2 {
		t.Fatalf("expected retry after nextTxIn + correction, got %v", f.node.reasons)
	}
	if f.node.reasons[1] != logic.TxReasonUserButtonEvent {
		t.Errorf("retry reason: got %v", f.node.reasons[1])
	}
}

func TestNoNetworkTriggersJoin(t *testing.T) {
	f := newFixture(Config{})
	f.node.outcomes = []logic.SendOutcome{{Kind: logic.OutcomeNoNetwork}}
	f.app.UserButtonEvent()
	if f.node.joins != 1 {
		t.Errorf("joins: got %d, want 1", f.node.joins)
	}
}

func TestDownlinkSetDutyCycle(t *testing.T) {
	f := newFixture(Config{DutyCycle: time.Hour})
	f.app.PostJoin()

	f.app.ProcessDownlink(&lorawan.AppData{Port: CommandPort, Buffer: []byte{0x01, 0, 0, 0, 60}}, lorawan.RxParams{})

	if f.app.DutyCycle() != time.Minute {
		t.Fatalf("duty cycle: got %v", f.app.DutyCycle())
	}
	if len(f.store.saved) != 1 || f.store.saved[0] != time.Minute {
		t.Errorf("persisted: %v", f.store.saved)
	}
	f.run(time.Minute)
	if len(f.node.reasons) != 1 {
		t.Errorf("cycle not restarted with new period: %d uplinks", len(f.node.reasons))
	}
}

func TestDutyCycleChangeHook(t *testing.T) {
	f := newFixture(Config{DutyCycle: time.Hour})
	var got []time.Duration
	f.app.OnDutyCycleChange(func(d time.Duration) { got = append(got, d) })

	f.app.ProcessDownlink(&lorawan.AppData{Port: CommandPort, Buffer: []byte{0x01, 0, 0, 0, 1}}, lorawan.RxParams{})
	f.app.ProcessDownlink(&lorawan.AppData{Port: CommandPort, Buffer: []byte{0x01, 0, 0, 0x0E, 0x10}}, lorawan.RxParams{})

	if len(got) != 1 || got[0] != time.Hour {
		t.Errorf("hook calls: got %v, want [1h]", got)
	}
}

func TestDownlinkSetDutyCycleTooShort(t *testing.T) {
	f := newFixture(Config{DutyCycle: time.Hour})
	f.app.ProcessDownlink(&lorawan.AppData{Port: CommandPort, Buffer: []byte{0x01, 0, 0, 0, 1}}, lorawan.RxParams{})
	if f.app.DutyCycle() != time.Hour {
		t.Errorf("duty cycle changed to %v", f.app.DutyCycle())
	}
	if len(f.store.saved) != 0 {
		t.Error("rejected value must not be persisted")
	}
}

func TestSetDutyCyclePersistError(t *testing.T) {
	f := newFixture(Config{})
	f.store.err = errors.New("read-only")
	if err := f.app.SetDutyCycle(time.Minute); err == nil {
		t.Error("expected error")
	}
}

func TestDownlinkSendNow(t *testing.T) {
	f := newFixture(Config{})
	f.app.ProcessDownlink(&lorawan.AppData{Port: CommandPort, Buffer: []byte{0x02}}, lorawan.RxParams{})
	if len(f.node.reasons) != 0 {
		t.Fatal("send must run as a separate task")
	}
	f.s.RunPending()
	if len(f.node.reasons) != 1 || f.node.reasons[0] != logic.TxReasonAppCycleEvent {
		t.Errorf("reasons: %v", f.node.reasons)
	}
}

func TestDownlinkOtherPortIgnored(t *testing.T) {
	f := newFixture(Config{})
	f.app.ProcessDownlink(&lorawan.AppData{Port: 2, Buffer: []byte{0x02}}, lorawan.RxParams{})
	f.s.RunPending()
	if len(f.node.reasons) != 0 {
		t.Error("downlink on another port must be ignored")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      []byte
		want    Command
		wantErr bool
	}{
		{[]byte{0x01, 0x00, 0x00, 0x03, 0x84}, Command{Op: OpSetDutyCycle, DutyCycle: 900 * time.Second}, false},
		{[]byte{0x02}, Command{Op: OpSendNow}, false},
		{nil, Command{}, true},
		{[]byte{0x01, 0x00}, Command{}, true},
		{[]byte{0x02, 0x00}, Command{}, true},
		{[]byte{0x7F}, Command{}, true},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCommand(% X) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommand(% X) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFrame(t *testing.T) {
	f := newFixture(Config{DataRate: 3, TxPower: 14})
	data := &lorawan.AppData{Port: 2}
	f.app.Frame(logic.TxReasonTimerEvent, data)

	got, err := payload.Decode(data.Buffer)
	if err != nil {
		t.Fatal(err)
	}
	want := payload.Frame{Reason: logic.TxReasonTimerEvent, TxPower: 14, DataRate: 3, SupplyMv: 3300}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	f.node.supplyErr = errors.New("adc gone")
	f.app.Frame(logic.TxReasonUserButtonEvent, data)
	got, _ = payload.Decode(data.Buffer)
	if got.SupplyMv != 0 || got.Reason != logic.TxReasonUserButtonEvent {
		t.Errorf("frame after supply error: %+v", got)
	}
}
