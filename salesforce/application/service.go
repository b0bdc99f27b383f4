package application

import (
	"context"
	"time"

	"salesforce-bulk/salesforce/domain"
)

// Service concentra a regra de throttling das chamadas à API.
//
// Ele não sabe nada sobre HTTP, apenas espera a vez da chamada.
type Service struct {
	Store domain.LimiterStore
}

// Wait libera a chamada na hora se houver token; senão espera a vez no
// token bucket da chave até o ctx encerrar.
// Retorna quanto tempo a chamada ficou retida.
func (s Service) Wait(ctx context.Context, key domain.Key) (time.Duration, error) {
	if s.Store == nil {
		return 0, nil
	}
	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return 0, nil
	}

	start := time.Now()
	err := lim.Wait(ctx)
	return time.Since(start), err
}
