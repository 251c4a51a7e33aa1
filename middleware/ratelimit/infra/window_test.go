package infra

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"shardhub/middleware/ratelimit/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestFixedWindow_AllowsLimitThenDenies(t *testing.T) {
	clk := newClock()
	s := NewFixedWindowStore(WithClock(clk.Now))

	for i := 1; i <= 100; i++ {
		if !s.Allow("10.0.0.1") {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if s.Allow("10.0.0.1") {
		t.Fatalf("expected request 101 to be denied")
	}
	// continua negando sem incrementar
	if s.Allow("10.0.0.1") {
		t.Fatalf("expected request 102 to be denied")
	}
}

func TestFixedWindow_ExpiryStartsFreshWindow(t *testing.T) {
	clk := newClock()
	s := NewFixedWindowStore(WithClock(clk.Now), WithLimit(2))

	s.Allow("a")
	s.Allow("a")
	if s.Allow("a") {
		t.Fatalf("expected third request to be denied")
	}

	// exatamente no limite da janela ainda é a mesma janela (now > expiry reseta)
	clk.Advance(60 * time.Second)
	if s.Allow("a") {
		t.Fatalf("expected request at expiry instant to be denied")
	}

	clk.Advance(time.Millisecond)
	if !s.Allow("a") {
		t.Fatalf("expected request after expiry to be allowed")
	}
	if !s.Allow("a") {
		t.Fatalf("expected second request of fresh window to be allowed")
	}
	if s.Allow("a") {
		t.Fatalf("expected fresh window to enforce the limit again")
	}
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	s := NewFixedWindowStore(WithLimit(1))

	if !s.Allow("a") || !s.Allow("b") {
		t.Fatalf("expected first request of each key to be allowed")
	}
	if s.Allow("a") {
		t.Fatalf("expected second request of key a to be denied")
	}
}

func TestFixedWindow_RetryInReportsRemainingWindow(t *testing.T) {
	clk := newClock()
	s := NewFixedWindowStore(WithClock(clk.Now), WithLimit(1))

	if got := s.RetryIn("a"); got != 0 {
		t.Fatalf("expected 0 for unknown key, got %s", got)
	}

	s.Allow("a")
	clk.Advance(20 * time.Second)

	lim := s.Get(domain.Key("a"))
	if lim.Allow() {
		t.Fatalf("expected denial")
	}
	h, ok := lim.(domain.RetryHinter)
	if !ok {
		t.Fatalf("expected limiter to implement RetryHinter")
	}
	if got := h.RetryIn(); got != 40*time.Second {
		t.Fatalf("expected 40s, got %s", got)
	}
}

func TestFixedWindow_SweepRemovesExpired(t *testing.T) {
	clk := newClock()
	s := NewFixedWindowStore(WithClock(clk.Now))

	s.Allow("old")
	clk.Advance(61 * time.Second)
	s.Allow("fresh")

	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected 1 entry removed, got %d", n)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", s.Len())
	}
}

func TestFixedWindow_ConcurrentAllowNeverExceedsLimit(t *testing.T) {
	s := NewFixedWindowStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 250; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Allow("10.0.0.1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
			// ruído em outras chaves (outros shards do mapa)
			s.Allow(fmt.Sprintf("10.0.1.%d", i))
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", allowed)
	}
}
