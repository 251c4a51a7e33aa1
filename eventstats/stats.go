package eventstats

import (
	"context"
	"time"
)

type Kind string

const (
	KindAllowed      Kind = "allowed"
	KindDenied       Kind = "denied"
	KindConnect      Kind = "connect"
	KindDisconnect   Kind = "disconnect"
	KindMessage      Kind = "message"
	KindMalformed    Kind = "malformed"
	KindThrottled    Kind = "throttled"
	KindPersistError Kind = "persist_error"
	KindSlowConsumer Kind = "slow_consumer"
)

// Event é um acontecimento contável.
//
// Subject é o endereço do cliente (eventos do limiter) ou a chave do shard
// (eventos do hub). Cuidado com cardinalidade ao rastrear Subject.
type Event struct {
	Kind    Kind
	Subject string
	Route   string
	At      time.Time
}

// Recorder é a estratégia de persistência das estatísticas.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop descarta todos os eventos.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
