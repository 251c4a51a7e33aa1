package eventstats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder grava contadores em hashes do Redis.
//
// Layout das chaves (prefixo padrão "shardhub:stats"):
//
//	<prefix>:total                  campo = kind
//	<prefix>:minute:<yyyymmddhhmm>  campo = kind (expira após ttl)
//	<prefix>:route                  campo = route:kind
//	<prefix>:subject:<subject>      campo = kind (só com trackSubjects)
type RedisRecorder struct {
	rdb redis.Cmdable

	prefix string
	// ttl vale só para as séries por minuto e por subject.
	// O total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackSubjects bool
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func WithBucket(bucket string) RedisOption {
	return func(r *RedisRecorder) { r.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithRedisTrackSubjects(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackSubjects = track }
}

func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "shardhub:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Kind)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)

	if r.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, bucketKey, r.ttl)
		}
	}

	if route := strings.TrimSpace(ev.Route); route != "" {
		pipe.HIncrBy(ctx, r.prefix+":route", route+":"+field, 1)
	}

	if r.trackSubjects {
		if s := strings.TrimSpace(ev.Subject); s != "" {
			subjectKey := r.prefix + ":subject:" + s
			pipe.HIncrBy(ctx, subjectKey, field, 1)
			if r.ttl > 0 {
				pipe.Expire(ctx, subjectKey, r.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
