package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"shardhub/middleware/ratelimit/application"
	"shardhub/middleware/ratelimit/domain"
	"shardhub/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	// Max <= 0 desliga o limite. Sessões WebSocket seguram a vaga enquanto
	// estiverem abertas.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Pool           domain.SlotPool
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if errors.Is(err, domain.ErrNoSlot) {
					http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				}
				// cliente desistiu: não há para quem responder
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
