package application

import (
	"context"
	"errors"
	"time"

	"shardhub/collab/domain"
	"shardhub/eventstats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pacer limita frames de entrada de uma sessão.
type Pacer interface {
	Allow() bool
}

type unlimited struct{}

func (unlimited) Allow() bool { return true }

// Hub liga transportes aos atores do Registry.
type Hub struct {
	Registry   *Registry
	Logger     *zap.Logger
	Stats      eventstats.Recorder
	SendBuffer int
	// NewPacer cria o pacer de cada sessão; nil = sem limite.
	NewPacer func() Pacer
	// OnPersistError recebe as falhas de persistência (além do log).
	OnPersistError func(key domain.ShardKey, err error)
}

func (h *Hub) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Hub) stats() eventstats.Recorder {
	if h.Stats == nil {
		return eventstats.Nop{}
	}
	return h.Stats
}

// Load serve a leitura HTTP: documento atual do shard, sem efeitos colaterais.
func (h *Hub) Load(ctx context.Context, key domain.ShardKey) (domain.Document, []byte, error) {
	actor, release, err := h.Registry.Acquire(key)
	if err != nil {
		return domain.Document{}, nil, err
	}
	defer release()
	return actor.HandleLoad(ctx)
}

// Serve executa o ciclo de vida inteiro de uma sessão sobre `conn`: connect,
// loop de leitura, disconnect. Retorna quando o transporte fecha, o ctx é
// cancelado ou o ator para. Erros de transporte não são erro de Serve.
func (h *Hub) Serve(ctx context.Context, key domain.ShardKey, conn domain.Conn, addr string) error {
	log := h.logger().With(zap.String("shard", string(key)))

	actor, release, err := h.Registry.Acquire(key)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer release()

	sess := NewSession(uuid.NewString(), conn, h.SendBuffer)
	sess.Addr = addr
	log = log.With(zap.String("session", sess.ID))

	if err := actor.HandleConnect(ctx, sess); err != nil {
		_ = sess.Close()
		log.Error("connect failed", zap.Error(err))
		return err
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writeLoop(func(err error) {
			log.Debug("write failed", zap.Error(err))
			actor.HandleDisconnect(sess)
		})
	}()

	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	var pacer Pacer = unlimited{}
	if h.NewPacer != nil {
		pacer = h.NewPacer()
	}

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if sess.State() != domain.SessionClosed {
				log.Debug("transport closed", zap.Error(err))
			}
			break
		}
		if !pacer.Allow() {
			h.record(ctx, key, eventstats.KindThrottled)
			log.Warn("frame dropped: session over frame rate")
			continue
		}
		h.handle(ctx, log, actor, sess, raw)
	}

	actor.HandleDisconnect(sess)
	<-writerDone
	return nil
}

func (h *Hub) handle(ctx context.Context, log *zap.Logger, actor *Actor, sess *Session, raw []byte) {
	err := actor.HandleMessage(ctx, sess, raw)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrMalformedPayload):
		log.Warn("discarding malformed payload", zap.Error(err), zap.Int("bytes", len(raw)))
	case errors.Is(err, domain.ErrPersistFailed):
		log.Error("document broadcast but not persisted", zap.Error(err))
		if h.OnPersistError != nil {
			h.OnPersistError(actor.Key(), err)
		}
	default:
		log.Warn("message not applied", zap.Error(err))
	}
}

func (h *Hub) record(ctx context.Context, key domain.ShardKey, kind eventstats.Kind) {
	ev := eventstats.Event{Kind: kind, Subject: string(key), Route: "hub", At: time.Now()}
	if err := h.stats().Record(context.WithoutCancel(ctx), ev); err != nil {
		h.logger().Debug("hub stats record failed", zap.Error(err))
	}
}
