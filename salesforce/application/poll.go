package application

import (
	"context"
	"time"

	"salesforce-bulk/salesforce/domain"
)

// DefaultPollInterval é o intervalo usado quando nenhum é informado.
const DefaultPollInterval = 5 * time.Second

// FetchFunc busca o estado atual de um job.
type FetchFunc func(ctx context.Context) (domain.JobInfo, error)

// Poller consulta um job até ele chegar a JobComplete, Failed ou Aborted.
type Poller struct {
	Interval time.Duration
	// OnPoll (opcional) recebe cada leitura, inclusive a terminal.
	OnPoll func(domain.JobInfo)
}

// Wait retorna a última leitura do job. Em caso de erro de fetch ou de ctx
// encerrado, retorna a última leitura conhecida junto com o erro.
func (p Poller) Wait(ctx context.Context, fetch FetchFunc) (domain.JobInfo, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var last domain.JobInfo
	for {
		info, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = info
		if p.OnPoll != nil {
			p.OnPoll(info)
		}
		if info.State.Terminal() {
			return info, nil
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return last, ctx.Err()
		case <-t.C:
		}
	}
}
