package salesforce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAuthTimeout = 30 * time.Second

// Client é uma sessão autenticada na API REST do Salesforce.
//
// Ele só conhece a sessão (instance URL + session id) e a versão da API;
// o pacote bulk constrói os jobs em cima dele.
type Client struct {
	InstanceURL string
	SessionID   string
	Version     string

	http   *http.Client
	logger *zap.Logger
}

type Option func(*options)

type options struct {
	httpClient  *http.Client
	loginURL    string
	authTimeout time.Duration
	logger      *zap.Logger
}

// WithHTTPClient define o http.Client usado na autenticação e nas chamadas
// (ex: com os transports Throttle / LimitConcurrency).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLoginURL troca o endpoint derivado de domain (útil em testes e proxies).
func WithLoginURL(u string) Option {
	return func(o *options) { o.loginURL = strings.TrimRight(u, "/") }
}

// WithAuthTimeout limita a requisição de token/login. Padrão: 30s.
func WithAuthTimeout(d time.Duration) Option {
	return func(o *options) { o.authTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{authTimeout: defaultAuthTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// NewClient cria um Client a partir de uma sessão já obtida
// (ex: session id de um fluxo OAuth feito fora daqui).
func NewClient(instanceURL, sessionID, version string, opts ...Option) *Client {
	o := buildOptions(opts)
	if version == "" {
		version = DefaultAPIVersion
	}
	return &Client{
		InstanceURL: strings.TrimRight(instanceURL, "/"),
		SessionID:   sessionID,
		Version:     version,
		http:        o.httpClient,
		logger:      o.logger,
	}
}

func (c *Client) HTTPClient() *http.Client { return c.http }

func (c *Client) Logger() *zap.Logger { return c.logger }

// BaseURL é <instance>/services/data/v<versão>/.
func (c *Client) BaseURL() string {
	return c.InstanceURL + "/services/data/v" + c.Version + "/"
}

// Bulk2URL é a raiz dos endpoints do Bulk API 2.0.
func (c *Client) Bulk2URL() string {
	return c.BaseURL() + "jobs/"
}

// Headers retorna uma cópia nova dos headers de autenticação.
func (c *Client) Headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.SessionID)
	h.Set("Content-Type", "application/json")
	h.Set("X-PrettyPrint", "1")
	return h
}

// NewRequest monta uma requisição com os headers da sessão.
// URLs relativas (sem esquema) são resolvidas contra InstanceURL.
func (c *Client) NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.InstanceURL + "/" + strings.TrimLeft(url, "/")
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range c.Headers() {
		req.Header[k] = v
	}
	return req, nil
}

// Do executa a requisição. Respostas não-2xx viram *APIError (o corpo é lido
// e fechado); em sucesso quem chama fecha resp.Body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("salesforce %s %s: %w", req.Method, req.URL.Path, err)
	}

	c.logger.Debug("salesforce call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, parseAPIError(resp.StatusCode, req.Method, req.URL.Path, body)
}
