package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salesforce-bulk/salesforce/domain"

	"golang.org/x/time/rate"
)

// Store guarda um token bucket por chave (ex: host da instância) e descarta
// chaves que ficaram sem uso por mais de idleTTL.
type Store struct {
	mu           sync.Mutex
	entries      map[domain.Key]*storeEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type storeEntry struct {
	lim      *bucket
	lastSeen time.Time
}

// bucket é o rate.Limiter de uma chave. Wait reserva o próximo token na fila
// do limiter, então chamadas concorrentes saem na ordem em que chegaram.
type bucket struct {
	*rate.Limiter
}

// Wait difere de rate.Limiter.Wait em um ponto: quando o ctx encerra antes do
// token, retorna ctx.Err() em vez de falhar de imediato pelo deadline.
func (b *bucket) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := b.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate limiter with burst %d cannot grant a token", b.Burst())
	}
	d := r.Delay()
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// NewStore cria o cache de limiters. rps <= 0 equivale a sem limite.
func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	s := &Store{
		entries:      make(map[domain.Key]*storeEntry),
		rps:          lim,
		burst:        burst,
		idleTTL:      30 * time.Minute,
		cleanupEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64 { return float64(s.rps) }
func (s *Store) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.limiter(key)
}

func (s *Store) limiter(key domain.Key) *bucket {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := &bucket{Limiter: rate.NewLimiter(s.rps, s.burst)}
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

// Len retorna quantas chaves estão em cache.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor limpa chaves inativas periodicamente até o ctx encerrar.
// O canal retornado fecha quando a goroutine termina.
func (s *Store) StartJanitor(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.cleanupEvery <= 0 {
		close(done)
		return done
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
	return done
}
