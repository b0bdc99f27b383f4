package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"salesforce-bulk/salesforce"
	"salesforce-bulk/salesforce/application"
	"salesforce-bulk/salesforce/domain"
)

const DefaultTimeout = 30 * time.Second

// Bulk é o cliente do Bulk API 2.0 de uma sessão.
type Bulk struct {
	client     *salesforce.Client
	interval   time.Duration
	timeout    time.Duration
	maxRecords int
	logger     *zap.Logger
	history    domain.JobHistory

	Query  *QueryService
	Ingest *IngestService
}

type Option func(*Bulk)

// WithInterval define o intervalo padrão de polling. Padrão: 5s.
func WithInterval(d time.Duration) Option {
	return func(b *Bulk) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithTimeout limita cada requisição (inclusive a leitura do corpo). Padrão: 30s.
func WithTimeout(d time.Duration) Option {
	return func(b *Bulk) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMaxRecords define o tamanho das páginas de resultado de query.
// Zero deixa o Salesforce escolher.
func WithMaxRecords(n int) Option {
	return func(b *Bulk) { b.maxRecords = n }
}

// WithLogger usa l em vez do logger do Client.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bulk) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHistory grava os jobs criados e seus estados finais em h.
func WithHistory(h domain.JobHistory) Option {
	return func(b *Bulk) { b.history = h }
}

func New(client *salesforce.Client, opts ...Option) *Bulk {
	b := &Bulk{
		client:   client,
		interval: application.DefaultPollInterval,
		timeout:  DefaultTimeout,
		logger:   client.Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	b.Query = &QueryService{b: b}
	b.Ingest = &IngestService{b: b}
	return b
}

func (b *Bulk) Client() *salesforce.Client { return b.client }

func (b *Bulk) Interval() time.Duration { return b.interval }

// response é uma resposta já lida por completo.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do chama Bulk2URL()+endpoint com os headers da sessão mais extra.
func (b *Bulk) do(ctx context.Context, method, endpoint string, extra http.Header, body io.Reader) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := b.client.NewRequest(ctx, method, b.client.Bulk2URL()+endpoint, body)
	if err != nil {
		return response{}, err
	}
	for k, v := range extra {
		req.Header[k] = v
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read %s %s response: %w", method, endpoint, err)
	}
	return response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// doJSON envia in (se não nil) como JSON e decodifica a resposta em out (se não nil).
func (b *Bulk) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := b.do(ctx, method, endpoint, nil, body)
	if err != nil {
		return err
	}
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, endpoint, err)
	}
	return nil
}

func (b *Bulk) poll(ctx context.Context, id string, interval time.Duration, fetch application.FetchFunc) (domain.JobInfo, error) {
	if interval <= 0 {
		interval = b.interval
	}
	p := application.Poller{
		Interval: interval,
		OnPoll: func(info domain.JobInfo) {
			b.logger.Debug("bulk job polled",
				zap.String("job_id", id),
				zap.String("state", string(info.State)),
				zap.Int64("processed", info.NumberRecordsProcessed))
		},
	}

	info, err := p.Wait(ctx, fetch)
	if err != nil {
		return info, err
	}

	fields := []zap.Field{
		zap.String("job_id", id),
		zap.String("operation", string(info.Operation)),
		zap.String("state", string(info.State)),
		zap.Int64("processed", info.NumberRecordsProcessed),
		zap.Int64("failed", info.NumberRecordsFailed),
	}
	if info.State == domain.StateJobComplete {
		b.logger.Info("bulk job finished", fields...)
	} else {
		b.logger.Warn("bulk job finished", append(fields, zap.String("error", info.ErrorMessage))...)
	}
	b.record(ctx, info, "")
	return info, nil
}

// record grava o job no histórico, sem falhar a operação.
func (b *Bulk) record(ctx context.Context, info domain.JobInfo, soql string) {
	if b.history == nil || info.ID == "" {
		return
	}
	rec := domain.JobRecord{
		ID:          info.ID,
		Operation:   info.Operation,
		Object:      info.Object,
		SOQL:        soql,
		State:       info.State,
		Processed:   info.NumberRecordsProcessed,
		Failed:      info.NumberRecordsFailed,
		InstanceURL: b.client.InstanceURL,
		Error:       info.ErrorMessage,
		UpdatedAt:   time.Now(),
	}
	if err := b.history.Save(ctx, rec); err != nil {
		b.logger.Warn("failed to save job history", zap.String("job_id", info.ID), zap.Error(err))
	}
}

// CreateJobQuery cria um job de query (queryAll com includeAll).
func (b *Bulk) CreateJobQuery(ctx context.Context, soql string, includeAll bool) (*QueryJob, error) {
	return b.Query.Create(ctx, soql, includeAll)
}

func (b *Bulk) CreateJobInsert(ctx context.Context, object string) (*IngestJob, error) {
	return b.Ingest.CreateInsert(ctx, object)
}

func (b *Bulk) CreateJobUpdate(ctx context.Context, object string) (*IngestJob, error) {
	return b.Ingest.CreateUpdate(ctx, object)
}

func (b *Bulk) CreateJobUpsert(ctx context.Context, object, externalIDField string) (*IngestJob, error) {
	return b.Ingest.CreateUpsert(ctx, object, externalIDField)
}

// CreateJobDelete manda os registros para a lixeira.
func (b *Bulk) CreateJobDelete(ctx context.Context, object string) (*IngestJob, error) {
	return b.Ingest.CreateDelete(ctx, object)
}

// CreateJobHardDelete apaga de vez (exige a permissão "Bulk API Hard Delete").
func (b *Bulk) CreateJobHardDelete(ctx context.Context, object string) (*IngestJob, error) {
	return b.Ingest.CreateHardDelete(ctx, object)
}

func (b *Bulk) CreateJob(ctx context.Context, object string, op domain.Operation, externalIDField string) (*IngestJob, error) {
	return b.Ingest.Create(ctx, object, op, externalIDField)
}
