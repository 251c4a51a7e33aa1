package infra

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"shardhub/middleware/ratelimit/domain"
)

const (
	DefaultWindowLimit = 100
	DefaultWindow      = 60 * time.Second

	windowShards = 32
)

// FixedWindowStore conta requisições por chave numa janela fixa.
//
// O mapa é particionado em shards (hash fnv da chave), cada um com seu próprio
// mutex: chaves diferentes raramente disputam o mesmo lock. Entradas vencidas são
// sobrescritas na próxima requisição; o janitor (opcional) remove as antigas.
type FixedWindowStore struct {
	shards [windowShards]windowShard
	limit  int
	window time.Duration
	now    func() time.Time
}

type windowShard struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	count  int
	expiry time.Time
}

type WindowOption func(*FixedWindowStore)

func WithLimit(n int) WindowOption {
	return func(s *FixedWindowStore) { s.limit = n }
}

func WithWindow(d time.Duration) WindowOption {
	return func(s *FixedWindowStore) { s.window = d }
}

// WithClock troca o relógio (usado em testes).
func WithClock(now func() time.Time) WindowOption {
	return func(s *FixedWindowStore) { s.now = now }
}

func NewFixedWindowStore(opts ...WindowOption) *FixedWindowStore {
	s := &FixedWindowStore{
		limit:  DefaultWindowLimit,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*windowEntry)
	}
	return s
}

func (s *FixedWindowStore) Limit() int {
	return s.limit
}

func (s *FixedWindowStore) Window() time.Duration {
	return s.window
}

// Get implementa domain.LimiterStore. O limiter retornado não guarda estado:
// cada Allow consulta o shard da chave.
func (s *FixedWindowStore) Get(key domain.Key) domain.Limiter {
	return windowLimiter{store: s, key: string(key)}
}

// Allow registra uma requisição de `key` e diz se ela cabe na janela atual.
func (s *FixedWindowStore) Allow(key string) bool {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[key]
	if !ok || now.After(ent.expiry) {
		sh.entries[key] = &windowEntry{count: 1, expiry: now.Add(s.window)}
		return true
	}
	if ent.count >= s.limit {
		return false
	}
	ent.count++
	return true
}

// RetryIn retorna quanto falta para a janela de `key` reabrir (0 se já aberta).
func (s *FixedWindowStore) RetryIn(key string) time.Duration {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[key]
	if !ok || now.After(ent.expiry) {
		return 0
	}
	return ent.expiry.Sub(now)
}

// Len retorna quantas chaves estão guardadas (vencidas ou não).
func (s *FixedWindowStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep remove entradas cuja janela já venceu.
func (s *FixedWindowStore) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, ent := range sh.entries {
			if now.After(ent.expiry) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor roda Sweep a cada `every` até o ctx encerrar.
func (s *FixedWindowStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

func (s *FixedWindowStore) shardFor(key string) *windowShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%windowShards]
}

type windowLimiter struct {
	store *FixedWindowStore
	key   string
}

func (l windowLimiter) Allow() bool {
	return l.store.Allow(l.key)
}

func (l windowLimiter) RetryIn() time.Duration {
	return l.store.RetryIn(l.key)
}
