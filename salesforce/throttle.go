package salesforce

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesforce-bulk/salesforce/application"
	"salesforce-bulk/salesforce/domain"
)

// KeyFunc escolhe a chave de throttling de uma chamada.
type KeyFunc func(r *http.Request) string

// RoundTripperFunc adapta uma função a http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type ThrottleOptions struct {
	Store     domain.LimiterStore
	Stats     domain.StatsStore
	KeyFn     KeyFunc
	KeyHeader string
	Logger    *zap.Logger
}

// DefaultKeyFunc usa o header configurado e, sem ele, o host da instância.
func DefaultKeyFunc(keyHeader string) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if r.URL != nil && r.URL.Host != "" {
			return r.URL.Host
		}
		if r.Host != "" {
			return r.Host
		}
		return "unknown"
	}
}

// Throttle segura cada chamada até o token bucket da chave liberar.
// Diferente de um middleware de servidor, aqui não há 429: a chamada espera
// na fila do bucket até passar ou o ctx da requisição encerrar.
func Throttle(opts ThrottleOptions) func(next http.RoundTripper) http.RoundTripper {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.Service{Store: opts.Store}

	return func(next http.RoundTripper) http.RoundTripper {
		if next == nil {
			next = http.DefaultTransport
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			key := domain.Key(opts.KeyFn(r))

			waited, err := svc.Wait(r.Context(), key)
			if opts.Stats != nil {
				ev := domain.CallEvent{
					Key:     key,
					Allowed: err == nil,
					Method:  r.Method,
					Path:    r.URL.Path,
					Waited:  waited,
					At:      time.Now(),
				}
				if serr := opts.Stats.Record(r.Context(), ev); serr != nil {
					opts.Logger.Debug("failed to record call stats", zap.Error(serr))
				}
			}
			if err != nil {
				return nil, err
			}
			if waited > 0 {
				opts.Logger.Debug("salesforce call throttled",
					zap.String("key", string(key)),
					zap.String("path", r.URL.Path),
					zap.Duration("waited", waited))
			}

			return next.RoundTrip(r)
		})
	}
}
