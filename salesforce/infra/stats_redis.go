package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesforce-bulk/salesforce/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore acumula contadores de chamadas em hashes do Redis,
// compartilhados entre vários processos que usam a mesma org.
//
// Layout (prefixo padrão "salesforce:calls"):
//
//	<prefix>:total              allowed | denied | throttled | waited_ms
//	<prefix>:minute:YYYYMMDDhhmm mesmos campos, com TTL
//	<prefix>:route              "<METHOD /rota>:<campo>"
//	<prefix>:key:<key>          por chave, com TTL (opcional)
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl vale só para as séries por minuto / por chave; total não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "salesforce:calls",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.CallEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}
	waitedMS := ev.Waited.Milliseconds()

	incr := func(pipe redis.Pipeliner, key string) {
		pipe.HIncrBy(ctx, key, field, 1)
		if ev.Waited > 0 {
			pipe.HIncrBy(ctx, key, "throttled", 1)
			pipe.HIncrBy(ctx, key, "waited_ms", waitedMS)
		}
	}

	pipe := s.rdb.Pipeline()
	incr(pipe, s.prefix+":total")

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		incr(pipe, bucketKey)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if route := RouteLabel(ev.Method, ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			incr(pipe, keyKey)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê o hash <prefix>:total.
func (s *RedisStatsStore) Totals(ctx context.Context) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, s.prefix+":total").Result()
}
