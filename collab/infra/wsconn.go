package infra

import (
	"sync"
	"time"

	"shardhub/collab/domain"

	"github.com/gorilla/websocket"
)

const (
	DefaultWriteWait  = 10 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultMaxMessage = 1 << 20

	closeGrace = time.Second
)

// WSConn adapta *websocket.Conn para domain.Conn.
//
// Frames de texto carregam o documento JSON. O ping/pong mantém a conexão viva
// e derruba clientes que sumiram sem fechar o socket. WriteMessage é chamado só
// pela goroutine de escrita da sessão; pings usam WriteControl, que o gorilla
// permite em paralelo.
type WSConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration

	stop chan struct{}
	once sync.Once
}

var _ domain.Conn = (*WSConn)(nil)

type WSOption func(*WSConn)

func WithWriteWait(d time.Duration) WSOption {
	return func(c *WSConn) { c.writeWait = d }
}

func WithPongWait(d time.Duration) WSOption {
	return func(c *WSConn) { c.pongWait = d }
}

func NewWSConn(ws *websocket.Conn, opts ...WSOption) *WSConn {
	c := &WSConn{
		ws:        ws,
		writeWait: DefaultWriteWait,
		pongWait:  DefaultPongWait,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	ws.SetReadLimit(DefaultMaxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(c.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	go c.pingLoop()
	return c
}

func (c *WSConn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		// qualquer frame recebido prova que o cliente está vivo
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WSConn) WriteMessage(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close não bloqueia: o frame de close e o fechamento do socket seguem em
// background, limitados por closeGrace. Pode ser chamado com o lock do ator.
func (c *WSConn) Close() error {
	c.once.Do(func() {
		close(c.stop)
		go func() {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGrace))
			_ = c.ws.Close()
		}()
	})
	return nil
}

func (c *WSConn) pingLoop() {
	t := time.NewTicker(c.pongWait * 9 / 10)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				return
			}
		}
	}
}
