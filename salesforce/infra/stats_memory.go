package infra

import (
	"context"
	"sync"
	"time"

	"salesforce-bulk/salesforce/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
	// Throttled conta chamadas liberadas depois de esperar no token bucket.
	Throttled int64
	Waited    time.Duration
}

func (c *Counters) add(ev domain.CallEvent) {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.Waited > 0 {
		c.Throttled++
		c.Waited += ev.Waited
	}
}

// MemoryStatsStore guarda contadores em memória.
// Útil para testes e para o resumo impresso pela CLI; não expira nada.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.CallEvent) error {
	route := RouteLabel(ev.Method, ev.Path)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byRoute[route]
	c.add(ev)
	s.byRoute[route] = c

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

// MultiStats grava o mesmo evento em vários stores; devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.CallEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
