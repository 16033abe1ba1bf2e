package ble

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/chaz8081/trailcam/internal/phase"
)

const (
	testMAC         = "AA:BB:CC:DD:EE:FF"
	testServiceUUID = "0000ffe0-0000-1000-8000-00805f9b34fb"
	testCharUUID    = "0000ffe9-0000-1000-8000-00805f9b34fb"
)

func testOptions() Options {
	return Options{
		ServiceUUID:        testServiceUUID,
		CharacteristicUUID: testCharUUID,
		PhaseTimeout:       2 * time.Second,
		Logger:             zerolog.Nop(),
	}
}

func TestSendWritesCommandOverSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	char := stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	if err := Send(stack, testMAC, []byte("GPIO3"), testOptions()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if char.writeCount() != 1 {
		t.Fatalf("write count = %d, want 1", char.writeCount())
	}
	if got := string(char.writes[0]); got != "GPIO3" {
		t.Errorf("written payload = %q, want %q", got, "GPIO3")
	}

	want := []string{"start_discovery", "stop_discovery", "connect " + testMAC, "write", "disconnect"}
	got := stack.callLog()
	if len(got) != len(want) {
		t.Fatalf("call log = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSendDiscoveryTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stack := newFakeStack()
	// No advertisements at all: the discover phase can never complete.
	opts := testOptions()
	opts.PhaseTimeout = 300 * time.Millisecond

	start := time.Now()
	err := Send(stack, testMAC, []byte("GPIO3"), opts)
	elapsed := time.Since(start)

	var terr *phase.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("Send() error = %v, want TimeoutError", err)
	}
	if terr.Phase != phaseDiscover {
		t.Errorf("timed-out phase = %q, want %q", terr.Phase, phaseDiscover)
	}
	if elapsed < opts.PhaseTimeout {
		t.Errorf("Send() returned after %v, before the %v timeout", elapsed, opts.PhaseTimeout)
	}
	if elapsed > opts.PhaseTimeout+300*time.Millisecond {
		t.Errorf("Send() returned after %v, too long past the %v timeout", elapsed, opts.PhaseTimeout)
	}

	for _, call := range stack.callLog() {
		if strings.HasPrefix(call, "connect") {
			t.Errorf("Send() attempted %q after discovery timed out", call)
		}
	}
}

func TestSendConnectFailure(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	stack.failConnect = errors.New("le-connection-abort-by-local")
	char := stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	err := Send(stack, testMAC, []byte("GPIO3"), testOptions())

	var ferr *phase.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("Send() error = %v, want FailedError", err)
	}
	if ferr.Phase != phaseConnect {
		t.Errorf("failed phase = %q, want %q", ferr.Phase, phaseConnect)
	}
	if !strings.Contains(err.Error(), "le-connection-abort-by-local") {
		t.Errorf("error %q does not carry the underlying cause", err)
	}
	if char.writeCount() != 0 {
		t.Errorf("write count = %d after connect failure, want 0", char.writeCount())
	}
}

func TestSendResolveFailure(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	stack.failResolve = errors.New("gatt browse failed")
	char := stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	err := Send(stack, testMAC, []byte("GPIO3"), testOptions())

	var ferr *phase.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("Send() error = %v, want FailedError", err)
	}
	if ferr.Phase != phaseResolveServices {
		t.Errorf("failed phase = %q, want %q", ferr.Phase, phaseResolveServices)
	}
	if char.writeCount() != 0 {
		t.Errorf("write count = %d after resolve failure, want 0", char.writeCount())
	}
}

func TestSendMissingService(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	stack.resolved = []Service{
		&fakeService{uuid: "0000180a-0000-1000-8000-00805f9b34fb"},
	}

	err := Send(stack, testMAC, []byte("GPIO3"), testOptions())
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("Send() error = %v, want ErrServiceNotFound", err)
	}
}

func TestSendMissingCharacteristic(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	other := &fakeCharacteristic{stack: stack, uuid: "0000fff1-0000-1000-8000-00805f9b34fb"}
	stack.resolved = []Service{
		&fakeService{uuid: testServiceUUID, chars: []Characteristic{other}},
	}

	err := Send(stack, testMAC, []byte("GPIO3"), testOptions())
	if !errors.Is(err, ErrCharacteristicNotFound) {
		t.Fatalf("Send() error = %v, want ErrCharacteristicNotFound", err)
	}
	if other.writeCount() != 0 {
		t.Errorf("wrote to an unrelated characteristic %d times", other.writeCount())
	}
}

func TestSendWriteFailure(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	stack.failWrite = errors.New("att write rejected")
	stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	err := Send(stack, testMAC, []byte("GPIO3"), testOptions())

	var ferr *phase.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("Send() error = %v, want FailedError", err)
	}
	if ferr.Phase != phaseWriteValue {
		t.Errorf("failed phase = %q, want %q", ferr.Phase, phaseWriteValue)
	}
}

func TestSendDisconnectFailure(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	stack.failDisconnect = errors.New("link already torn down")
	char := stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	err := Send(stack, testMAC, []byte("GPIO2"), testOptions())

	var ferr *phase.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("Send() error = %v, want FailedError", err)
	}
	if ferr.Phase != phaseDisconnect {
		t.Errorf("failed phase = %q, want %q", ferr.Phase, phaseDisconnect)
	}
	// The command itself still went out; only the teardown leg failed.
	if char.writeCount() != 1 {
		t.Errorf("write count = %d, want 1", char.writeCount())
	}
}

func TestSendMatchesAddressCaseInsensitively(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{"aa:bb:cc:dd:ee:ff"}
	stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	if err := Send(stack, testMAC, []byte("GPIO3"), testOptions()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSendIgnoresUnrelatedAdvertisements(t *testing.T) {
	stack := newFakeStack()
	stack.advertisements = []string{"11:22:33:44:55:66", testMAC, "DE:AD:BE:EF:00:01"}
	stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	if err := Send(stack, testMAC, []byte("GPIO3"), testOptions()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	connects := 0
	for _, call := range stack.callLog() {
		if strings.HasPrefix(call, "connect") {
			connects++
			if call != "connect "+testMAC {
				t.Errorf("connected to %q, want %q", call, "connect "+testMAC)
			}
		}
	}
	if connects != 1 {
		t.Errorf("connect attempts = %d, want 1", connects)
	}
}

func TestSendAbsorbsRepeatedAdvertisements(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stack := newFakeStack()
	// Real peripherals advertise continuously; repeats must not trip the
	// one-completion-per-phase rule.
	stack.advertisements = []string{testMAC, testMAC, testMAC}
	stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	if err := Send(stack, testMAC, []byte("GPIO3"), testOptions()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSendAbsorbsSpontaneousDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stack := newFakeStack()
	stack.advertisements = []string{testMAC}
	stack.dropAfterWrite = true
	stack.withTestCharacteristic(testServiceUUID, testCharUUID)

	if err := Send(stack, testMAC, []byte("GPIO3"), testOptions()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}
