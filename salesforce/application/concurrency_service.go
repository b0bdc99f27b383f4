package application

import (
	"context"
	"time"

	"salesforce-bulk/salesforce/domain"
)

// ConcurrencyService reserva vagas de chamada em voo, com timeout opcional.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta reservar uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx do chamador encerrar.
//   - AcquireTimeout > 0: desiste depois do timeout com domain.ErrNoSlot.
//
// Se o ctx do chamador encerrar antes, o erro é o do ctx.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, domain.ErrNoSlot
}
