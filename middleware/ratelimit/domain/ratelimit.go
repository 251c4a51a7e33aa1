package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica o cliente limitado (normalmente o endereço remoto).
type Key string

// Limiter decide se a próxima requisição de uma chave é permitida agora.
//
// Cada chamada a Allow conta como uma requisição.
type Limiter interface {
	Allow() bool
}

// RetryHinter é implementado por limiters que sabem quando a janela reabre.
type RetryHinter interface {
	RetryIn() time.Duration
}

// LimiterStore obtém um limiter por chave. A implementação decide como guarda
// o estado (janela fixa, token bucket, etc.).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
