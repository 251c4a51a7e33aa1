package application

import (
	"time"

	"shardhub/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store domain.LimiterStore
	// RetryAfter é usado quando o limiter não informa quando a janela reabre.
	RetryAfter time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	retry := s.RetryAfter
	if h, ok := lim.(domain.RetryHinter); ok {
		if d := h.RetryIn(); d > 0 {
			retry = d
		}
	}
	if retry <= 0 {
		retry = 1 * time.Second
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}
