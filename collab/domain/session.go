package domain

import "fmt"

// Conn é o transporte duplex de uma sessão (WebSocket em produção).
//
// ReadMessage é chamado por uma única goroutine; WriteMessage também.
// Close pode ser chamado de qualquer goroutine e desbloqueia ReadMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// SessionState: Connecting → Open → Closed. Closed é terminal.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionOpen
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Identity é o resultado da resolução de shard de uma requisição.
type Identity struct {
	Key ShardKey
	// Anonymous indica que a identidade foi sintetizada e o chamador deve
	// gravá-la em cookie.
	Anonymous bool
	Source    IdentitySource
}

type IdentitySource string

const (
	SourceQuery     IdentitySource = "query"
	SourceBearer    IdentitySource = "bearer"
	SourceCookie    IdentitySource = "cookie"
	SourceAnonymous IdentitySource = "anonymous"
)
