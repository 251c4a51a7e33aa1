package application

import (
	"context"
	"sync"
	"time"

	"shardhub/collab/domain"
)

const DefaultIdleTimeout = 5 * time.Minute

// Registry mapeia ShardKey -> Actor. Cria sob demanda e despeja atores ociosos.
//
// Cada Acquire segura uma referência até o release: sessões seguram pela vida
// inteira, requisições HTTP pelo tempo da leitura. Só ator sem referências e
// ocioso há IdleTimeout é despejado; a próxima requisição cria um novo, que
// recarrega do store. O lock do registry cobre apenas o mapa, nunca uma
// operação de shard.
type Registry struct {
	newActor    func(domain.ShardKey) *Actor
	idleTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	actors map[domain.ShardKey]*registryEntry
	closed bool
}

type registryEntry struct {
	actor     *Actor
	refs      int
	idleSince time.Time
}

type RegistryOption func(*Registry)

func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTimeout = d }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(newActor func(domain.ShardKey) *Actor, opts ...RegistryOption) *Registry {
	r := &Registry{
		newActor:    newActor,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		actors:      make(map[domain.ShardKey]*registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire devolve o ator de `key` e a função que solta a referência.
// O release é idempotente.
func (r *Registry) Acquire(key domain.ShardKey) (*Actor, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, domain.ErrActorStopped
	}

	ent, ok := r.actors[key]
	if !ok {
		ent = &registryEntry{actor: r.newActor(key)}
		r.actors[key] = ent
	}
	ent.refs++

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(key, ent) })
	}
	return ent.actor, release, nil
}

func (r *Registry) release(key domain.ShardKey, ent *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent.refs--
	if ent.refs == 0 {
		ent.idleSince = r.now()
	}
}

// Evict despeja os atores sem referências e ociosos há pelo menos IdleTimeout.
func (r *Registry) Evict() int {
	now := r.now()

	r.mu.Lock()
	var evicted []*Actor
	for key, ent := range r.actors {
		if ent.refs == 0 && now.Sub(ent.idleSince) >= r.idleTimeout {
			delete(r.actors, key)
			evicted = append(evicted, ent.actor)
		}
	}
	r.mu.Unlock()

	for _, a := range evicted {
		a.Stop()
	}
	return len(evicted)
}

// StartJanitor roda Evict a cada `every` até o ctx encerrar.
func (r *Registry) StartJanitor(ctx context.Context, every time.Duration) {
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
				r.Evict()
			}
		}
	}()
}

// Close para todos os atores (fechando as sessões) e recusa novos Acquire.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	actors := make([]*Actor, 0, len(r.actors))
	for _, ent := range r.actors {
		actors = append(actors, ent.actor)
	}
	r.actors = make(map[domain.ShardKey]*registryEntry)
	r.mu.Unlock()

	for _, a := range actors {
		a.Stop()
	}
}

// RegistryStats são medidas instantâneas do registry.
type RegistryStats struct {
	Actors   int `json:"actors"`
	Sessions int `json:"sessions"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, ent := range r.actors {
		actors = append(actors, ent.actor)
	}
	r.mu.Unlock()

	st := RegistryStats{Actors: len(actors)}
	for _, a := range actors {
		st.Sessions += a.SessionCount()
	}
	return st
}
