package lorawan

import (
	"errors"
	"testing"
)

func TestParseEUI64(t *testing.T) {
	tests := []struct {
		in      string
		want    EUI64
		wantErr bool
	}{
		{"0102030405060708", EUI64{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"01:02:03:04:05:06:07:08", EUI64{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"70-b3-d5-7e-d0-00-00-00", EUI64{0x70, 0xB3, 0xD5, 0x7E, 0xD0, 0, 0, 0}, false},
		{"01020304050607", EUI64{}, true},
		{"zz02030405060708", EUI64{}, true},
	}
	for _, tt := range tests {
		got, err := ParseEUI64(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEUI64(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEUI64(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseAES128Key(t *testing.T) {
	k, err := ParseAES128Key("2B7E151628AED2A6ABF7158809CF4F3C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.String() != "2B7E151628AED2A6ABF7158809CF4F3C" {
		t.Errorf("round trip: got %s", k)
	}
	if _, err := ParseAES128Key("2B7E"); err == nil {
		t.Error("expected error for short key")
	}
	if !(AES128Key{}).IsZero() || k.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestProvisionInstallsAppKeyTwice(t *testing.T) {
	f := NewFakeMiddleware()
	km := KeyMaterial{
		DevEUI:  EUI64{1},
		JoinEUI: EUI64{2},
		AppKey:  AES128Key{3},
	}
	if err := Provision(f, km); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if f.DevEUI != km.DevEUI || f.JoinEUI != km.JoinEUI {
		t.Errorf("EUIs not installed: %v %v", f.DevEUI, f.JoinEUI)
	}
	if f.Keys[AppKey] != km.AppKey || f.Keys[NwkKey] != km.AppKey {
		t.Errorf("keys not installed: %v", f.Keys)
	}
}

func TestProvisionStopsAtFirstError(t *testing.T) {
	f := NewFakeMiddleware()
	f.SEError = errors.New("secure element locked")
	if err := Provision(f, KeyMaterial{}); err == nil {
		t.Fatal("expected error")
	}
	if f.SECalls != 1 {
		t.Errorf("expected provisioning to stop after first failure, got %d calls", f.SECalls)
	}
}

func TestParseActivation(t *testing.T) {
	if a, err := ParseActivation("OTAA"); err != nil || a != ActivationOTAA {
		t.Errorf("OTAA: %v %v", a, err)
	}
	if a, err := ParseActivation("abp"); err != nil || a != ActivationABP {
		t.Errorf("abp: %v %v", a, err)
	}
	if _, err := ParseActivation("lorawan"); err == nil {
		t.Error("expected error")
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusSuccess:             "SUCCESS",
		StatusNoNetworkJoined:     "NO_NETWORK_JOINED",
		StatusDutyCycleRestricted: "DUTY_CYCLE_RESTRICTED",
		StatusError:               "ERROR(3)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestFakeMiddlewareQueuesUntilProcess(t *testing.T) {
	f := NewFakeMiddleware()
	rec := newRecorder()
	f.SetHandler(rec)

	f.CompleteJoin(true)
	f.DeliverRx(TxParams{Port: 10}, AppData{Port: 10, Buffer: []byte{2}}, RxParams{Port: 10})
	if len(rec.order) != 0 {
		t.Fatal("callbacks must wait for Process")
	}
	if len(rec.mac) != 2 {
		t.Errorf("expected 2 mac-process notifications, got %d", len(rec.mac))
	}
	f.Process()
	want := []string{"join", "tx", "rx"}
	if len(rec.order) != len(want) {
		t.Fatalf("order: got %v, want %v", rec.order, want)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Fatalf("order: got %v, want %v", rec.order, want)
		}
	}
}
