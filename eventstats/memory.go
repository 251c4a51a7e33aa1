package eventstats

import (
	"context"
	"sync"
)

// MemoryRecorder guarda contadores em memória. Não expira nada.
type MemoryRecorder struct {
	mu        sync.Mutex
	byKind    map[Kind]int64
	byRoute   map[string]int64
	bySubject map[string]map[Kind]int64

	trackSubjects bool
}

type MemoryOption func(*MemoryRecorder)

func WithTrackSubjects(track bool) MemoryOption {
	return func(r *MemoryRecorder) { r.trackSubjects = track }
}

func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	r := &MemoryRecorder{
		byKind:    make(map[Kind]int64),
		byRoute:   make(map[string]int64),
		bySubject: make(map[string]map[Kind]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKind[ev.Kind]++
	if ev.Route != "" {
		r.byRoute[ev.Route+":"+string(ev.Kind)]++
	}
	if r.trackSubjects && ev.Subject != "" {
		m := r.bySubject[ev.Subject]
		if m == nil {
			m = make(map[Kind]int64)
			r.bySubject[ev.Subject] = m
		}
		m[ev.Kind]++
	}
	return nil
}

// Count retorna o total de eventos de um tipo.
func (r *MemoryRecorder) Count(k Kind) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKind[k]
}

// Totals retorna uma cópia dos totais por tipo.
func (r *MemoryRecorder) Totals() map[Kind]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Kind]int64, len(r.byKind))
	for k, v := range r.byKind {
		out[k] = v
	}
	return out
}

func (r *MemoryRecorder) ByRoute() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.byRoute))
	for k, v := range r.byRoute {
		out[k] = v
	}
	return out
}

func (r *MemoryRecorder) BySubject(subject string) map[Kind]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Kind]int64, len(r.bySubject[subject]))
	for k, v := range r.bySubject[subject] {
		out[k] = v
	}
	return out
}
