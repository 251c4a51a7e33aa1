package infra

import (
	"context"
	"sync/atomic"

	"shardhub/middleware/ratelimit/domain"
)

// ChanPool é um semáforo baseado em channel com capacidade fixa.
type ChanPool struct {
	sem   chan struct{}
	inUse atomic.Int64
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria um pool com capacidade `max`.
func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, false
	}
	p.inUse.Add(1)

	var released atomic.Bool
	return func() {
		if released.Swap(true) {
			return
		}
		p.inUse.Add(-1)
		<-p.sem
	}, true
}

// InUse retorna quantas vagas estão ocupadas agora.
func (p *ChanPool) InUse() int {
	return int(p.inUse.Load())
}

// Cap retorna a capacidade total do pool.
func (p *ChanPool) Cap() int {
	return cap(p.sem)
}
