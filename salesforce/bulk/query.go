package bulk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"salesforce-bulk/salesforce/domain"
)

// QueryService opera jobs de query (jobs/query) por id.
type QueryService struct {
	b *Bulk
}

func (q *QueryService) Create(ctx context.Context, soql string, includeAll bool) (*QueryJob, error) {
	op := domain.OpQuery
	if includeAll {
		op = domain.OpQueryAll
	}

	var info domain.JobInfo
	err := q.b.doJSON(ctx, http.MethodPost, "query", map[string]any{
		"operation": op,
		"query":     soql,
	}, &info)
	if err != nil {
		return nil, err
	}

	q.b.logger.Info("bulk query job created",
		zap.String("job_id", info.ID),
		zap.String("operation", string(op)),
		zap.String("object", info.Object))
	q.b.record(ctx, info, soql)

	return newQueryJob(q, info, soql), nil
}

// Job devolve um handle para um job existente, lendo seu estado atual.
func (q *QueryService) Job(ctx context.Context, id string) (*QueryJob, error) {
	info, err := q.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	return newQueryJob(q, info, ""), nil
}

func (q *QueryService) Info(ctx context.Context, id string) (domain.JobInfo, error) {
	var info domain.JobInfo
	err := q.b.doJSON(ctx, http.MethodGet, "query/"+url.PathEscape(id), nil, &info)
	return info, err
}

// Poll lê o job até um estado terminal. interval <= 0 usa o padrão do Bulk.
func (q *QueryService) Poll(ctx context.Context, id string, interval time.Duration) (domain.JobInfo, error) {
	return q.b.poll(ctx, id, interval, func(ctx context.Context) (domain.JobInfo, error) {
		return q.Info(ctx, id)
	})
}

// Results baixa todas as páginas do resultado (Sforce-Locator) e devolve
// um único conjunto de registros.
func (q *QueryService) Results(ctx context.Context, id string, format Format) (Result, error) {
	if err := format.check(); err != nil {
		return Result{}, err
	}

	var pages []string
	locator := ""
	for {
		params := url.Values{}
		if q.b.maxRecords > 0 {
			params.Set("maxRecords", strconv.Itoa(q.b.maxRecords))
		}
		if locator != "" {
			params.Set("locator", locator)
		}
		endpoint := "query/" + url.PathEscape(id) + "/results"
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}

		resp, err := q.b.do(ctx, http.MethodGet, endpoint, nil, nil)
		if err != nil {
			return Result{}, err
		}
		pages = append(pages, string(resp.body))

		locator = resp.header.Get("Sforce-Locator")
		if locator == "" || locator == "null" {
			break
		}
	}

	q.b.logger.Debug("bulk query results fetched", zap.String("job_id", id), zap.Int("pages", len(pages)))
	return newResult(format, mergePages(pages))
}

func (q *QueryService) Abort(ctx context.Context, id string) (domain.JobInfo, error) {
	var info domain.JobInfo
	err := q.b.doJSON(ctx, http.MethodPatch, "query/"+url.PathEscape(id),
		map[string]any{"state": domain.StateAborted}, &info)
	if err == nil {
		q.b.record(ctx, info, "")
	}
	return info, err
}

func (q *QueryService) Delete(ctx context.Context, id string) error {
	return q.b.doJSON(ctx, http.MethodDelete, "query/"+url.PathEscape(id), nil, nil)
}
