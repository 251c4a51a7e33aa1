package domain

import (
	"context"
	"errors"
)

// SlotPool limita quantas requisições (ou sessões WebSocket) ficam ativas ao
// mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. O release
// retornado deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// ErrNoSlot indica que nenhuma vaga ficou livre dentro do tempo de espera.
var ErrNoSlot = errors.New("no concurrency slot available")
