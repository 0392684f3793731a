package detector

import (
	"testing"
	"time"
)

// === tripping ===

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		if tripped := b.failure(); tripped {
			t.Fatalf("tripped after %d failures, limit is 3", i+1)
		}
	}
	if !b.allow() {
		t.Fatal("circuit should still be closed below the limit")
	}

	if tripped := b.failure(); !tripped {
		t.Fatal("third failure should trip the circuit")
	}
	if b.allow() {
		t.Fatal("open circuit must reject calls")
	}
	if got := b.currentState(); got != circuitOpen {
		t.Fatalf("state = %v, want open", got)
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b := newBreaker(3, time.Minute)

	b.failure()
	b.failure()
	b.success()
	b.failure()
	b.failure()

	if got := b.currentState(); got != circuitClosed {
		t.Fatalf("state = %v, want closed after interleaved success", got)
	}
}

// === recovery ===

func TestBreaker_ProbeAfterTimeout(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)

	b.failure()
	if b.allow() {
		t.Fatal("circuit should be open right after tripping")
	}

	time.Sleep(20 * time.Millisecond)

	if !b.allow() {
		t.Fatal("probe should be allowed once the timeout elapsed")
	}
	if got := b.currentState(); got != circuitHalfOpen {
		t.Fatalf("state = %v, want half_open during the probe", got)
	}
}

func TestBreaker_SuccessfulProbeCloses(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)

	b.failure()
	time.Sleep(20 * time.Millisecond)
	b.allow()

	if closed := b.success(); !closed {
		t.Fatal("probe success should report the circuit closing")
	}
	if got := b.currentState(); got != circuitClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)

	b.failure()
	time.Sleep(20 * time.Millisecond)
	b.allow()

	if tripped := b.failure(); !tripped {
		t.Fatal("probe failure should report the circuit re-opening")
	}
	if b.allow() {
		t.Fatal("circuit must reject calls again after a failed probe")
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := newBreaker(0, 0)
	if b.failureLimit != 5 {
		t.Errorf("failureLimit = %d, want 5", b.failureLimit)
	}
	if b.probeAfter != 30*time.Second {
		t.Errorf("probeAfter = %v, want 30s", b.probeAfter)
	}
}
