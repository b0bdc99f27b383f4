package salesforce

import (
	"io"
	"net/http"
	"sync"
	"time"

	"salesforce-bulk/salesforce/application"
	"salesforce-bulk/salesforce/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

// LimitConcurrency limita as chamadas em voo a Max. A vaga só volta ao pool
// quando o corpo da resposta é fechado (ou quando a chamada falha).
func LimitConcurrency(opts ConcurrencyOptions) func(next http.RoundTripper) http.RoundTripper {
	if opts.Max <= 0 {
		return func(next http.RoundTripper) http.RoundTripper { return next }
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.RoundTripper) http.RoundTripper {
		if next == nil {
			next = http.DefaultTransport
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				return nil, err
			}
			release = sync.OnceFunc(release)

			resp, err := next.RoundTrip(r)
			if err != nil {
				release()
				return nil, err
			}
			if resp.Body == nil {
				release()
				return resp, nil
			}
			resp.Body = &releaseOnClose{ReadCloser: resp.Body, release: release}
			return resp, nil
		})
	}
}

type releaseOnClose struct {
	io.ReadCloser
	release func()
}

func (b *releaseOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}
