package domain

import (
	"context"
	"errors"
)

// Key identifica quem consome o orçamento de chamadas à API
// (ex: host da instância, id da org, usuário de integração).
type Key string

// Limiter controla o ritmo das chamadas de uma chave.
//
// A camada de infra usa golang.org/x/time/rate (token bucket).
type Limiter interface {
	// Allow consome um token se houver um disponível agora.
	Allow() bool
	// Wait bloqueia até o token da chamada chegar ou o ctx encerrar.
	// Em caso de ctx encerrado retorna ctx.Err() e devolve a reserva.
	Wait(ctx context.Context) error
}

// LimiterStore obtém o limiter de uma chave, criando sob demanda.
type LimiterStore interface {
	Get(Key) Limiter
}

// ErrNoSlot indica que nenhuma vaga de chamada concorrente ficou livre a tempo.
var ErrNoSlot = errors.New("no request slot available")

// SlotPool limita quantas chamadas ficam em voo ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// O release retornado deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
