package bulk

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"salesforce-bulk/salesforce/domain"
)

// jobState guarda a última JobInfo lida de um job.
type jobState struct {
	mu   sync.RWMutex
	info domain.JobInfo
}

func (s *jobState) get() domain.JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// set só troca a info quando ela tem conteúdo (polls interrompidos devolvem vazio).
func (s *jobState) set(info domain.JobInfo) {
	if info.ID == "" {
		return
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
}

// QueryJob é um job de query criado (ou reaberto) por este cliente.
type QueryJob struct {
	ID   string
	SOQL string

	svc *QueryService
	st  jobState
}

func newQueryJob(svc *QueryService, info domain.JobInfo, soql string) *QueryJob {
	j := &QueryJob{ID: info.ID, SOQL: soql, svc: svc}
	j.st.info = info
	return j
}

// Info é a última leitura conhecida, sem ir ao Salesforce.
func (j *QueryJob) Info() domain.JobInfo { return j.st.get() }

func (j *QueryJob) State() domain.JobState { return j.Info().State }

// Refresh lê o estado atual do job.
func (j *QueryJob) Refresh(ctx context.Context) (domain.JobInfo, error) {
	info, err := j.svc.Info(ctx, j.ID)
	if err != nil {
		return j.Info(), err
	}
	j.st.set(info)
	return info, nil
}

// PollStatus espera o job chegar a JobComplete, Failed ou Aborted.
func (j *QueryJob) PollStatus(ctx context.Context, interval time.Duration) (domain.JobInfo, error) {
	info, err := j.svc.Poll(ctx, j.ID, interval)
	j.st.set(info)
	if err != nil {
		return j.Info(), err
	}
	return info, nil
}

func (j *QueryJob) GetResults(ctx context.Context, format Format) (Result, error) {
	return j.svc.Results(ctx, j.ID, format)
}

func (j *QueryJob) Abort(ctx context.Context) error {
	info, err := j.svc.Abort(ctx, j.ID)
	j.st.set(info)
	return err
}

func (j *QueryJob) Delete(ctx context.Context) error {
	return j.svc.Delete(ctx, j.ID)
}

// IngestJob é um job de DML (insert, update, upsert, delete, hardDelete).
type IngestJob struct {
	ID string

	svc *IngestService
	st  jobState
}

func newIngestJob(svc *IngestService, info domain.JobInfo) *IngestJob {
	j := &IngestJob{ID: info.ID, svc: svc}
	j.st.info = info
	return j
}

func (j *IngestJob) Info() domain.JobInfo { return j.st.get() }

func (j *IngestJob) State() domain.JobState { return j.Info().State }

func (j *IngestJob) UploadData(ctx context.Context, csvData string) error {
	return j.svc.UploadData(ctx, j.ID, csvData)
}

func (j *IngestJob) CompleteUpload(ctx context.Context) error {
	info, err := j.svc.CompleteUpload(ctx, j.ID)
	j.st.set(info)
	return err
}

func (j *IngestJob) Refresh(ctx context.Context) (domain.JobInfo, error) {
	info, err := j.svc.Info(ctx, j.ID)
	if err != nil {
		return j.Info(), err
	}
	j.st.set(info)
	return info, nil
}

// PollStatus espera o job chegar a JobComplete, Failed ou Aborted.
func (j *IngestJob) PollStatus(ctx context.Context, interval time.Duration) (domain.JobInfo, error) {
	info, err := j.svc.Poll(ctx, j.ID, interval)
	j.st.set(info)
	if err != nil {
		return j.Info(), err
	}
	return info, nil
}

func (j *IngestJob) IsSuccessful() bool { return j.State() == domain.StateJobComplete }

func (j *IngestJob) HasFailedRecords() bool { return j.Info().NumberRecordsFailed > 0 }

func (j *IngestJob) IsFailed() bool { return j.State() == domain.StateFailed }

func (j *IngestJob) IsAborted() bool { return j.State() == domain.StateAborted }

func (j *IngestJob) GetSuccessfulResults(ctx context.Context, format Format) (Result, error) {
	return j.svc.SuccessfulResults(ctx, j.ID, format)
}

func (j *IngestJob) GetFailedResults(ctx context.Context, format Format) (Result, error) {
	return j.svc.FailedResults(ctx, j.ID, format)
}

func (j *IngestJob) GetUnprocessedRecords(ctx context.Context, format Format) (Result, error) {
	return j.svc.UnprocessedRecords(ctx, j.ID, format)
}

// Outcome junta os três resultados de um job de ingest.
type Outcome struct {
	Successful  Result
	Failed      Result
	Unprocessed Result
}

// GetOutcome baixa sucessos, falhas e não processados em paralelo.
func (j *IngestJob) GetOutcome(ctx context.Context, format Format) (Outcome, error) {
	if err := format.check(); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Successful, err = j.GetSuccessfulResults(ctx, format)
		return err
	})
	g.Go(func() (err error) {
		out.Failed, err = j.GetFailedResults(ctx, format)
		return err
	})
	g.Go(func() (err error) {
		out.Unprocessed, err = j.GetUnprocessedRecords(ctx, format)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (j *IngestJob) Abort(ctx context.Context) error {
	info, err := j.svc.Abort(ctx, j.ID)
	j.st.set(info)
	return err
}

func (j *IngestJob) Delete(ctx context.Context) error {
	return j.svc.Delete(ctx, j.ID)
}
