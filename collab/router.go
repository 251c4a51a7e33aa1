package collab

import (
	"encoding/json"
	"net/http"
	"time"

	"shardhub/collab/application"
	"shardhub/collab/domain"
	"shardhub/collab/infra"
	"shardhub/eventstats"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultCookieName   = "session"
	DefaultCookieMaxAge = 24 * time.Hour
	DefaultWSPath       = "/todos"
)

type Options struct {
	Hub      *application.Hub
	Resolver application.Resolver
	Logger   *zap.Logger
	// Events, se presente, aparece em /stats.
	Events *eventstats.MemoryRecorder

	CookieName   string
	CookieMaxAge time.Duration
	WSPath       string
	// AllowAnyOrigin desliga a checagem de Origin do upgrade.
	AllowAnyOrigin bool
	WSOptions      []infra.WSOption
}

type router struct {
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewRouter(opts Options) http.Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = DefaultCookieMaxAge
	}
	if opts.WSPath == "" {
		opts.WSPath = DefaultWSPath
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	rt := &router{
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if opts.AllowAnyOrigin {
		rt.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rt.handleLoad)
	mux.HandleFunc("GET "+opts.WSPath, rt.handleSocket)
	mux.HandleFunc("GET /stats", rt.handleStats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (rt *router) resolve(r *http.Request) domain.Identity {
	in := application.IdentityInput{
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
	}
	if c, err := r.Cookie(rt.opts.CookieName); err == nil {
		in.SessionCookie = c.Value
	}
	return rt.opts.Resolver.Resolve(in)
}

func (rt *router) identityCookie(id domain.Identity) *http.Cookie {
	return &http.Cookie{
		Name:     rt.opts.CookieName,
		Value:    string(id.Key),
		Path:     "/",
		MaxAge:   int(rt.opts.CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (rt *router) handleLoad(w http.ResponseWriter, r *http.Request) {
	id := rt.resolve(r)
	if id.Anonymous {
		http.SetCookie(w, rt.identityCookie(id))
	}

	_, frame, err := rt.opts.Hub.Load(r.Context(), id.Key)
	if err != nil {
		rt.log.Error("load failed", zap.String("shard", string(id.Key)), zap.Error(err))
		http.Error(w, "document unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(frame)
}

func (rt *router) handleSocket(w http.ResponseWriter, r *http.Request) {
	id := rt.resolve(r)

	var hdr http.Header
	if id.Anonymous {
		hdr = http.Header{}
		hdr.Add("Set-Cookie", rt.identityCookie(id).String())
	}

	ws, err := rt.upgrader.Upgrade(w, r, hdr)
	if err != nil {
		// o Upgrader já respondeu com o status de erro
		rt.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := infra.NewWSConn(ws, rt.opts.WSOptions...)
	if err := rt.opts.Hub.Serve(r.Context(), id.Key, conn, r.RemoteAddr); err != nil {
		rt.log.Warn("session ended with error", zap.String("shard", string(id.Key)), zap.Error(err))
	}
}

type statsResponse struct {
	Registry application.RegistryStats `json:"registry"`
	Events   map[eventstats.Kind]int64 `json:"events,omitempty"`
}

func (rt *router) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Registry: rt.opts.Hub.Registry.Stats()}
	if rt.opts.Events != nil {
		resp.Events = rt.opts.Events.Totals()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
