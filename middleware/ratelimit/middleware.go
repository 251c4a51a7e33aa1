package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"shardhub/eventstats"
	"shardhub/middleware/ratelimit/application"
	"shardhub/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store               domain.LimiterStore
	Stats               eventstats.Recorder
	Logger              *zap.Logger
	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type windowInfo interface {
	Limit() int
	Window() time.Duration
}

// DefaultKeyFunc usa o endereço do cliente como chave.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica o rate limit antes de qualquer lógica de shard.
// Requisição bloqueada recebe RejectStatus (429) com corpo text/plain.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}
	if opts.Stats == nil {
		opts.Stats = eventstats.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.Service{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if wi, ok := opts.Store.(windowInfo); ok {
					w.Header().Set("X-RateLimit-Limit", formatInt(wi.Limit()))
					w.Header().Set("X-RateLimit-Window", formatSeconds(wi.Window()))
				}
			}

			dec := svc.Decide(domain.Key(key))

			kind := eventstats.KindAllowed
			if !dec.Allowed {
				kind = eventstats.KindDenied
			}
			ev := eventstats.Event{Kind: kind, Subject: key, Route: r.Method + " " + r.URL.Path, At: time.Now()}
			if err := opts.Stats.Record(r.Context(), ev); err != nil {
				opts.Logger.Debug("rate stats record failed", zap.Error(err))
			}

			if !dec.Allowed {
				opts.Logger.Info("rate limited", zap.String("addr", key), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
				http.Error(w, "rate limit exceeded", opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
