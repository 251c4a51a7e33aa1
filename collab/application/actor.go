package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"shardhub/collab/domain"
	"shardhub/eventstats"

	"go.uber.org/zap"
)

const DefaultSaveTimeout = 5 * time.Second

// Actor é a autoridade única de um shard: documento em memória + sessões.
//
// Todas as operações entram no mesmo mutex, inclusive o fan-out do broadcast.
// O fan-out só enfileira (não bloqueia), então um irmão lento não segura o lock.
type Actor struct {
	key         domain.ShardKey
	store       DocStore
	log         *zap.Logger
	stats       eventstats.Recorder
	saveTimeout time.Duration

	mu       sync.Mutex
	loaded   bool
	doc      domain.Document
	frame    []byte
	sessions map[*Session]struct{}
	stopped  bool
}

type ActorOptions struct {
	Logger      *zap.Logger
	Stats       eventstats.Recorder
	SaveTimeout time.Duration
}

func NewActor(key domain.ShardKey, store DocStore, opts ActorOptions) *Actor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stats == nil {
		opts.Stats = eventstats.Nop{}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	return &Actor{
		key:         key,
		store:       store,
		log:         opts.Logger.With(zap.String("shard", string(key))),
		stats:       opts.Stats,
		saveTimeout: opts.SaveTimeout,
		sessions:    make(map[*Session]struct{}),
	}
}

func (a *Actor) Key() domain.ShardKey { return a.key }

// HandleConnect registra a sessão e enfileira o documento atual como primeiro
// frame. Carrega do store se o ator acabou de ficar ativo.
func (a *Actor) HandleConnect(ctx context.Context, s *Session) error {
	n, err := a.connect(ctx, s)
	if err != nil {
		return err
	}
	a.record(ctx, eventstats.KindConnect)
	a.log.Debug("session connected", zap.String("session", s.ID), zap.Int("sessions", n))
	return nil
}

func (a *Actor) connect(ctx context.Context, s *Session) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return 0, domain.ErrActorStopped
	}
	if err := a.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	if !s.open() {
		return 0, domain.ErrSessionClosed
	}
	if !s.enqueue(a.frame) {
		_ = s.Close()
		return 0, fmt.Errorf("initial frame: %w", domain.ErrSessionClosed)
	}
	a.sessions[s] = struct{}{}
	return len(a.sessions), nil
}

// HandleMessage trata um frame do cliente como substituição completa do
// documento (last-writer-wins).
//
// Payload inválido volta ErrMalformedPayload sem tocar em nada. Payload válido
// troca o documento em memória, é persistido e vai verbatim para as outras
// sessões do shard. Se o store falhar o broadcast acontece mesmo assim e o
// retorno é ErrPersistFailed. Sessão fora de Open: no-op.
func (a *Actor) HandleMessage(ctx context.Context, s *Session, raw []byte) error {
	if s.State() != domain.SessionOpen {
		return nil
	}

	doc, err := domain.ParseDocument(raw)
	if err != nil {
		a.record(ctx, eventstats.KindMalformed)
		return err
	}
	frame := append([]byte(nil), raw...)

	applied, dropped, saveErr := a.apply(ctx, s, doc, frame)
	for range dropped {
		a.record(ctx, eventstats.KindSlowConsumer)
	}
	if !applied {
		return saveErr
	}
	a.record(ctx, eventstats.KindMessage)

	if saveErr != nil {
		a.record(ctx, eventstats.KindPersistError)
		return fmt.Errorf("%w: %w", domain.ErrPersistFailed, saveErr)
	}
	return nil
}

// apply troca o documento, persiste e faz o broadcast numa única seção crítica.
// Retorna as sessões derrubadas por não acompanharem o fan-out.
func (a *Actor) apply(ctx context.Context, s *Session, doc domain.Document, frame []byte) (bool, []*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return false, nil, domain.ErrActorStopped
	}
	if _, ok := a.sessions[s]; !ok || s.State() != domain.SessionOpen {
		return false, nil, nil
	}

	a.doc = doc
	a.frame = frame
	a.loaded = true

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.saveTimeout)
	saveErr := a.store.Save(saveCtx, a.key, doc)
	cancel()

	return true, a.broadcast(s, frame), saveErr
}

// HandleDisconnect tira a sessão do conjunto e a fecha. Idempotente.
func (a *Actor) HandleDisconnect(s *Session) {
	a.mu.Lock()
	_, ok := a.sessions[s]
	delete(a.sessions, s)
	n := len(a.sessions)
	a.mu.Unlock()

	_ = s.Close()
	if ok {
		a.record(context.Background(), eventstats.KindDisconnect)
		a.log.Debug("session disconnected", zap.String("session", s.ID), zap.Int("sessions", n))
	}
}

// HandleLoad devolve o documento atual e sua forma serializada, sem alterar
// nada. O Document retornado é compartilhado: somente leitura.
func (a *Actor) HandleLoad(ctx context.Context) (domain.Document, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return domain.Document{}, nil, domain.ErrActorStopped
	}
	if err := a.ensureLoaded(ctx); err != nil {
		return domain.Document{}, nil, err
	}
	return a.doc, append([]byte(nil), a.frame...), nil
}

// SessionCount retorna quantas sessões estão ao vivo.
func (a *Actor) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Stop fecha todas as sessões e descarta a cópia em memória. O store não é
// tocado. Depois de Stop o ator recusa novas operações.
func (a *Actor) Stop() {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[*Session]struct{})
	a.stopped = true
	a.loaded = false
	a.doc = domain.Document{}
	a.frame = nil
	a.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

// broadcast enfileira o frame em todas as sessões menos a remetente.
// Chamado com a.mu travado.
func (a *Actor) broadcast(from *Session, frame []byte) []*Session {
	var dropped []*Session
	for s := range a.sessions {
		if s == from {
			continue
		}
		if s.enqueue(frame) {
			continue
		}
		delete(a.sessions, s)
		_ = s.Close()
		dropped = append(dropped, s)
		a.log.Warn("dropping session that cannot keep up", zap.String("session", s.ID))
	}
	return dropped
}

// chamado com a.mu travado
func (a *Actor) ensureLoaded(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	doc, err := a.store.Load(ctx, a.key)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", a.key, err)
	}
	a.doc = doc
	a.frame = frame
	a.loaded = true
	return nil
}

func (a *Actor) record(ctx context.Context, kind eventstats.Kind) {
	ev := eventstats.Event{Kind: kind, Subject: string(a.key), Route: "hub", At: time.Now()}
	if err := a.stats.Record(context.WithoutCancel(ctx), ev); err != nil {
		a.log.Debug("hub stats record failed", zap.Error(err))
	}
}
