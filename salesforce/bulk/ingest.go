package bulk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesforce-bulk/salesforce/domain"
)

// ErrUpsertNeedsExternalID é retornado antes de qualquer chamada quando um
// upsert não informa o campo de id externo.
var ErrUpsertNeedsExternalID = errors.New("the external id field is required for the upsert operation")

// IngestService opera jobs de DML (jobs/ingest) por id.
type IngestService struct {
	b *Bulk
}

func (s *IngestService) Create(ctx context.Context, object string, op domain.Operation, externalIDField string) (*IngestJob, error) {
	parsed, ok := domain.ParseIngestOperation(string(op))
	if !ok {
		return nil, fmt.Errorf("invalid ingest operation %q", op)
	}
	op = parsed
	if op == domain.OpUpsert && externalIDField == "" {
		return nil, ErrUpsertNeedsExternalID
	}

	payload := map[string]any{
		"object":    object,
		"operation": op,
	}
	if externalIDField != "" {
		payload["externalIdFieldName"] = externalIDField
	}

	var info domain.JobInfo
	if err := s.b.doJSON(ctx, http.MethodPost, "ingest", payload, &info); err != nil {
		return nil, err
	}

	s.b.logger.Info("bulk ingest job created",
		zap.String("job_id", info.ID),
		zap.String("operation", string(op)),
		zap.String("object", object))
	s.b.record(ctx, info, "")

	return newIngestJob(s, info), nil
}

func (s *IngestService) CreateInsert(ctx context.Context, object string) (*IngestJob, error) {
	return s.Create(ctx, object, domain.OpInsert, "")
}

func (s *IngestService) CreateUpdate(ctx context.Context, object string) (*IngestJob, error) {
	return s.Create(ctx, object, domain.OpUpdate, "")
}

func (s *IngestService) CreateUpsert(ctx context.Context, object, externalIDField string) (*IngestJob, error) {
	return s.Create(ctx, object, domain.OpUpsert, externalIDField)
}

func (s *IngestService) CreateDelete(ctx context.Context, object string) (*IngestJob, error) {
	return s.Create(ctx, object, domain.OpDelete, "")
}

func (s *IngestService) CreateHardDelete(ctx context.Context, object string) (*IngestJob, error) {
	return s.Create(ctx, object, domain.OpHardDelete, "")
}

// Job devolve um handle para um job existente, lendo seu estado atual.
func (s *IngestService) Job(ctx context.Context, id string) (*IngestJob, error) {
	info, err := s.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	return newIngestJob(s, info), nil
}

// UploadData envia o CSV (com header) do job. Pode ser chamado mais de uma
// vez enquanto o job estiver Open.
func (s *IngestService) UploadData(ctx context.Context, id, csvData string) error {
	h := http.Header{}
	h.Set("Content-Type", "text/csv")
	_, err := s.b.do(ctx, http.MethodPut, "ingest/"+url.PathEscape(id)+"/batches", h, strings.NewReader(csvData))
	if err != nil {
		return err
	}
	s.b.logger.Debug("bulk data uploaded", zap.String("job_id", id), zap.Int("bytes", len(csvData)))
	return nil
}

// CompleteUpload passa o job de Open para UploadComplete.
func (s *IngestService) CompleteUpload(ctx context.Context, id string) (domain.JobInfo, error) {
	return s.setState(ctx, id, domain.StateUploadComplete)
}

func (s *IngestService) Abort(ctx context.Context, id string) (domain.JobInfo, error) {
	info, err := s.setState(ctx, id, domain.StateAborted)
	if err == nil {
		s.b.record(ctx, info, "")
	}
	return info, err
}

func (s *IngestService) setState(ctx context.Context, id string, state domain.JobState) (domain.JobInfo, error) {
	var info domain.JobInfo
	err := s.b.doJSON(ctx, http.MethodPatch, "ingest/"+url.PathEscape(id),
		map[string]any{"state": state}, &info)
	return info, err
}

func (s *IngestService) Info(ctx context.Context, id string) (domain.JobInfo, error) {
	var info domain.JobInfo
	err := s.b.doJSON(ctx, http.MethodGet, "ingest/"+url.PathEscape(id), nil, &info)
	return info, err
}

// Poll lê o job até um estado terminal. interval <= 0 usa o padrão do Bulk.
func (s *IngestService) Poll(ctx context.Context, id string, interval time.Duration) (domain.JobInfo, error) {
	return s.b.poll(ctx, id, interval, func(ctx context.Context) (domain.JobInfo, error) {
		return s.Info(ctx, id)
	})
}

// SuccessfulResults tem as colunas sf__Id e sf__Created antes das enviadas.
func (s *IngestService) SuccessfulResults(ctx context.Context, id string, format Format) (Result, error) {
	return s.results(ctx, id, "successfulResults", format)
}

// FailedResults tem as colunas sf__Id e sf__Error antes das enviadas.
func (s *IngestService) FailedResults(ctx context.Context, id string, format Format) (Result, error) {
	return s.results(ctx, id, "failedResults", format)
}

// UnprocessedRecords são as linhas que não chegaram a ser processadas
// (job abortado ou falho).
func (s *IngestService) UnprocessedRecords(ctx context.Context, id string, format Format) (Result, error) {
	return s.results(ctx, id, "unprocessedrecords", format)
}

func (s *IngestService) results(ctx context.Context, id, kind string, format Format) (Result, error) {
	if err := format.check(); err != nil {
		return Result{}, err
	}
	resp, err := s.b.do(ctx, http.MethodGet, "ingest/"+url.PathEscape(id)+"/"+kind, nil, nil)
	if err != nil {
		return Result{}, err
	}
	return newResult(format, string(resp.body))
}

func (s *IngestService) Delete(ctx context.Context, id string) error {
	return s.b.doJSON(ctx, http.MethodDelete, "ingest/"+url.PathEscape(id), nil, nil)
}
