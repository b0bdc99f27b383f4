package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesforce-bulk/salesforce/domain"

	"go.uber.org/goleak"
)

func TestStore_GetSameKeyReturnsSameLimiter(t *testing.T) {
	s := NewStore(10, 1)

	l1 := s.Get(domain.Key("acme.my.salesforce.com"))
	l2 := s.Get(domain.Key("acme.my.salesforce.com"))
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 cached key, got %d", s.Len())
	}
}

func TestStore_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := NewStore(0.02, 1)

	lim := s.Get(domain.Key("k"))
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}
	if lim.Allow() {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}
}

func TestStore_ZeroRPSMeansUnlimited(t *testing.T) {
	s := NewStore(0, 0)

	lim := s.Get(domain.Key("k"))
	for i := 0; i < 100; i++ {
		if !lim.Allow() {
			t.Fatalf("expected unlimited limiter to allow call %d", i)
		}
	}
}

func TestStore_WaitGrantsTokensAtConfiguredRate(t *testing.T) {
	s := NewStore(10, 1)
	lim := s.Get(domain.Key("k"))

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := lim.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}
	// primeiro token imediato, os outros 5 a cada 100ms
	if elapsed := time.Since(start); elapsed < 450*time.Millisecond || elapsed > 900*time.Millisecond {
		t.Fatalf("expected ~500ms for 6 tokens at 10 rps, got %s", elapsed)
	}
}

func TestStore_WaitReturnsContextErrorAndCancelsReservation(t *testing.T) {
	s := NewStore(5, 1)
	lim := s.Get(domain.Key("k"))
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := lim.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// a reserva cancelada não empurra a próxima espera para depois de 2 tokens
	start := time.Now()
	if err := lim.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("expected next token within one interval, got %s", elapsed)
	}
}

func TestStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewStore(10, 1, WithIdleTTL(2*time.Millisecond), WithCleanupEvery(0))

	before := s.Get(domain.Key("k"))
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()

	after := s.Get(domain.Key("k"))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestStore_JanitorStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStore(10, 1, WithIdleTTL(time.Millisecond), WithCleanupEvery(time.Millisecond))
	s.Get(domain.Key("k"))

	ctx, cancel := context.WithCancel(context.Background())
	done := s.StartJanitor(ctx)

	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Len() != 0 {
		t.Fatalf("expected janitor to drop idle key")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop after cancel")
	}
}

func TestChanPool_AcquireRespectsCapacity(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if p.InUse() != 1 {
		t.Fatalf("expected 1 slot in use, got %d", p.InUse())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	if p.InUse() != 0 {
		t.Fatalf("expected slot released, got %d in use", p.InUse())
	}
}
