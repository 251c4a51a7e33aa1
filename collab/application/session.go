package application

import (
	"sync"
	"sync/atomic"

	"shardhub/collab/domain"
)

const DefaultSendBuffer = 32

// Session é uma conexão ao vivo presa a um único shard.
//
// Os frames de saída passam por uma fila limitada consumida pela goroutine de
// escrita (writeLoop). Quem enfileira nunca bloqueia: fila cheia conta como
// falha de envio e derruba só esta sessão.
type Session struct {
	ID   string
	Addr string

	conn  domain.Conn
	state atomic.Int32
	send  chan []byte
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewSession(id string, conn domain.Conn, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	s := &Session{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	s.state.Store(int32(domain.SessionConnecting))
	return s
}

func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

// Done fecha quando a sessão chega em Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) open() bool {
	return s.state.CompareAndSwap(int32(domain.SessionConnecting), int32(domain.SessionOpen))
}

// enqueue tenta colocar um frame na fila sem bloquear.
func (s *Session) enqueue(frame []byte) bool {
	if s.State() != domain.SessionOpen {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close leva a sessão para Closed e fecha o transporte. Idempotente.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(domain.SessionClosed))
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// writeLoop escreve os frames enfileirados até a sessão fechar. Um erro de
// escrita chama onFail (caminho de disconnect do ator).
func (s *Session) writeLoop(onFail func(error)) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			if err := s.conn.WriteMessage(frame); err != nil {
				onFail(err)
				return
			}
		}
	}
}
