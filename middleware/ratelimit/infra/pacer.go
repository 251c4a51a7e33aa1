package infra

import (
	"time"

	"golang.org/x/time/rate"
)

// FramePacer limita quantos frames por segundo uma sessão pode enviar.
//
// Um FramePacer pertence a uma única sessão. Com rps <= 0 não há limite.
type FramePacer struct {
	lim *rate.Limiter
}

func NewFramePacer(rps float64, burst int) *FramePacer {
	if rps <= 0 {
		return &FramePacer{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &FramePacer{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow consome um token se houver. Nunca bloqueia.
func (p *FramePacer) Allow() bool {
	if p == nil || p.lim == nil {
		return true
	}
	return p.lim.Allow()
}

// AllowAt é Allow com relógio explícito.
func (p *FramePacer) AllowAt(t time.Time) bool {
	if p == nil || p.lim == nil {
		return true
	}
	return p.lim.AllowN(t, 1)
}
