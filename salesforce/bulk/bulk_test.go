package bulk

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforce-bulk/internal/sftest"
	"salesforce-bulk/salesforce"
	"salesforce-bulk/salesforce/domain"
	"salesforce-bulk/salesforce/infra"
)

func newTestBulk(t *testing.T, opts ...Option) (*Bulk, *sftest.Server) {
	t.Helper()
	srv := sftest.Start(t)
	client := salesforce.NewClient(srv.URL, srv.IssueToken(), "")
	opts = append([]Option{WithInterval(time.Millisecond)}, opts...)
	return New(client, opts...), srv
}

func seedAccounts(srv *sftest.Server, n int) {
	for i := 0; i < n; i++ {
		srv.Seed("Account", sftest.Record{"Name": fmt.Sprintf("Acme %d", i), "Industry": "Energy"})
	}
}

func TestQueryJob_Lifecycle(t *testing.T) {
	b, srv := newTestBulk(t, WithMaxRecords(2))
	seedAccounts(srv, 5)
	ctx := context.Background()

	job, err := b.CreateJobQuery(ctx, "SELECT Id, Name FROM Account", false)
	require.NoError(t, err)
	assert.Equal(t, domain.OpQuery, job.Info().Operation)
	assert.Equal(t, domain.StateUploadComplete, job.State())

	info, err := job.PollStatus(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateJobComplete, info.State)
	assert.Equal(t, int64(5), info.NumberRecordsProcessed)
	assert.Equal(t, info, job.Info())

	dict, err := job.GetResults(ctx, FormatDict)
	require.NoError(t, err)
	require.Len(t, dict.Records, 5)
	assert.Equal(t, "Acme 0", dict.Records[0]["Name"])
	assert.Equal(t, "Acme 4", dict.Records[4]["Name"])
	assert.NotEmpty(t, dict.Records[2]["Id"])

	rows, err := job.GetResults(ctx, FormatReader)
	require.NoError(t, err)
	require.Len(t, rows.Rows, 6)
	assert.Equal(t, []string{"Id", "Name"}, rows.Rows[0])
	assert.Equal(t, 5, rows.Len())

	raw, err := job.GetResults(ctx, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(raw.CSV, "Id,Name"))
	assert.Equal(t, 5, raw.Len())
}

func TestQueryJob_IncludeAllSeesDeletedRecords(t *testing.T) {
	b, srv := newTestBulk(t)
	seedAccounts(srv, 2)
	ctx := context.Background()
	victim := srv.Records("Account")[0]["Id"]

	del, err := b.CreateJobDelete(ctx, "Account")
	require.NoError(t, err)
	require.NoError(t, del.UploadData(ctx, "Id\n"+victim+"\n"))
	require.NoError(t, del.CompleteUpload(ctx))
	_, err = del.PollStatus(ctx, 0)
	require.NoError(t, err)
	require.True(t, del.IsSuccessful())

	for includeAll, want := range map[bool]int{false: 1, true: 2} {
		job, err := b.CreateJobQuery(ctx, "SELECT Id FROM Account", includeAll)
		require.NoError(t, err)
		if includeAll {
			assert.Equal(t, domain.OpQueryAll, job.Info().Operation)
		}
		_, err = job.PollStatus(ctx, 0)
		require.NoError(t, err)
		res, err := job.GetResults(ctx, FormatDict)
		require.NoError(t, err)
		assert.Len(t, res.Records, want, "includeAll=%v", includeAll)
	}
}

func TestIngestJob_InsertWithFailedRecords(t *testing.T) {
	b, srv := newTestBulk(t)
	ctx := context.Background()

	job, err := b.CreateJobInsert(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, job.State())

	require.NoError(t, job.UploadData(ctx, "Name,Industry\nGood Co,Energy\nFAIL Co,Energy\n"))
	require.NoError(t, job.CompleteUpload(ctx))
	assert.Equal(t, domain.StateUploadComplete, job.State())

	_, err = job.PollStatus(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, job.IsSuccessful())
	assert.True(t, job.HasFailedRecords())
	assert.False(t, job.IsFailed())
	assert.False(t, job.IsAborted())

	ok, err := job.GetSuccessfulResults(ctx, FormatDict)
	require.NoError(t, err)
	require.Len(t, ok.Records, 1)
	assert.Equal(t, "Good Co", ok.Records[0]["Name"])
	assert.Equal(t, "true", ok.Records[0]["sf__Created"])
	assert.NotEmpty(t, ok.Records[0]["sf__Id"])

	failed, err := job.GetFailedResults(ctx, FormatDict)
	require.NoError(t, err)
	require.Len(t, failed.Records, 1)
	assert.Contains(t, failed.Records[0]["sf__Error"], "FIELD_CUSTOM_VALIDATION_EXCEPTION")

	assert.Len(t, srv.Records("Account"), 1)

	outcome, err := job.GetOutcome(ctx, FormatReader)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Successful.Len())
	assert.Equal(t, 1, outcome.Failed.Len())
	assert.Equal(t, 0, outcome.Unprocessed.Len())

	_, err = job.GetOutcome(ctx, "json")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestIngestJob_Upsert(t *testing.T) {
	b, srv := newTestBulk(t)
	srv.Seed("Account", sftest.Record{"Name": "Old", "Ext__c": "E1"})
	ctx := context.Background()

	_, err := b.CreateJobUpsert(ctx, "Account", "")
	require.ErrorIs(t, err, ErrUpsertNeedsExternalID)

	job, err := b.CreateJobUpsert(ctx, "Account", "Ext__c")
	require.NoError(t, err)
	require.NoError(t, job.UploadData(ctx, "Ext__c,Name\nE1,Renamed\nE2,Brand New\n"))
	require.NoError(t, job.CompleteUpload(ctx))
	_, err = job.PollStatus(ctx, 0)
	require.NoError(t, err)

	res, err := job.GetSuccessfulResults(ctx, FormatReader)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"sf__Id", "sf__Created", "Ext__c", "Name"}, res.Rows[0])
	assert.Equal(t, "false", res.Rows[1][1])
	assert.Equal(t, "true", res.Rows[2][1])
	assert.Len(t, srv.Records("Account"), 2)
}

func TestBulk_CreateJobNormalisesOperationName(t *testing.T) {
	b, srv := newTestBulk(t)
	srv.Seed("Account", sftest.Record{"Name": "Gone"})
	id := srv.Records("Account")[0]["Id"]
	ctx := context.Background()

	job, err := b.CreateJob(ctx, "Account", domain.Operation("hard-delete"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.OpHardDelete, job.Info().Operation)

	require.NoError(t, job.UploadData(ctx, "Id\n"+id+"\n"))
	require.NoError(t, job.CompleteUpload(ctx))
	_, err = job.PollStatus(ctx, 0)
	require.NoError(t, err)
	assert.True(t, job.IsSuccessful())
	assert.Empty(t, srv.Records("Account"))
}

func TestIngest_ValidationBeforeAnyRequest(t *testing.T) {
	b, srv := newTestBulk(t)
	ctx := context.Background()
	before := srv.Requests()

	_, err := b.Ingest.Create(ctx, "Account", domain.OpUpsert, "")
	require.ErrorIs(t, err, ErrUpsertNeedsExternalID)

	_, err = b.CreateJob(ctx, "Account", domain.OpQuery, "")
	require.Error(t, err)

	_, err = b.Ingest.SuccessfulResults(ctx, "750000000000000AAA", Format("xml"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "unsupported format: 'xml'. Allowed formats are: dict, reader, csv", err.Error())

	_, err = b.Query.Results(ctx, "750000000000000AAA", "")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, before, srv.Requests())
}

func TestIngestJob_FailedJob(t *testing.T) {
	b, srv := newTestBulk(t)
	ctx := context.Background()
	srv.FailNextJob("InvalidBatch : Field name not found : Nope__c")

	job, err := b.CreateJobInsert(ctx, "Contact")
	require.NoError(t, err)
	require.NoError(t, job.UploadData(ctx, "Nope__c\nx\n"))
	require.NoError(t, job.CompleteUpload(ctx))

	info, err := job.PollStatus(ctx, 0)
	require.NoError(t, err)
	assert.True(t, job.IsFailed())
	assert.False(t, job.IsSuccessful())
	assert.Contains(t, info.ErrorMessage, "Nope__c")

	unprocessed, err := job.GetUnprocessedRecords(ctx, FormatDict)
	require.NoError(t, err)
	assert.Len(t, unprocessed.Records, 1)
}

func TestIngestJob_Abort(t *testing.T) {
	b, _ := newTestBulk(t)
	ctx := context.Background()

	job, err := b.CreateJobInsert(ctx, "Account")
	require.NoError(t, err)
	require.NoError(t, job.UploadData(ctx, "Name\nA\nB\n"))
	require.NoError(t, job.Abort(ctx))
	assert.True(t, job.IsAborted())

	// upload num job fechado volta como erro da API
	err = job.UploadData(ctx, "Name\nC\n")
	require.Error(t, err)
	var apiErr *salesforce.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALIDJOBSTATE", apiErr.Code)

	rows, err := job.GetUnprocessedRecords(ctx, FormatReader)
	require.NoError(t, err)
	assert.Equal(t, 2, rows.Len())

	require.NoError(t, job.Delete(ctx))
	_, err = job.Refresh(ctx)
	assert.True(t, salesforce.IsStatus(err, 404))
}

func TestPollStatus_StopsWithContext(t *testing.T) {
	b, srv := newTestBulk(t)
	srv.PollsToComplete = 1_000_000
	seedAccounts(srv, 1)

	job, err := b.CreateJobQuery(context.Background(), "SELECT Id FROM Account", false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	info, err := job.PollStatus(ctx, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateInProgress, info.State)
	assert.Equal(t, domain.StateInProgress, job.State())
}

func TestQueryService_ReopenJobByID(t *testing.T) {
	b, srv := newTestBulk(t)
	seedAccounts(srv, 3)
	ctx := context.Background()

	created, err := b.Query.Create(ctx, "SELECT Name FROM Account WHERE Name = 'Acme 1'", false)
	require.NoError(t, err)

	job, err := b.Query.Job(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, job.ID)

	_, err = job.PollStatus(ctx, 0)
	require.NoError(t, err)
	res, err := job.GetResults(ctx, FormatDict)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Acme 1", res.Records[0]["Name"])

	require.NoError(t, job.Delete(ctx))
}

func TestBulk_RecordsHistory(t *testing.T) {
	hist, err := infra.OpenSQLiteHistory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	b, srv := newTestBulk(t, WithHistory(hist))
	seedAccounts(srv, 2)
	ctx := context.Background()

	const soql = "SELECT Id FROM Account"
	job, err := b.CreateJobQuery(ctx, soql, false)
	require.NoError(t, err)

	rec, ok, err := hist.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateUploadComplete, rec.State)
	assert.Equal(t, soql, rec.SOQL)

	_, err = job.PollStatus(ctx, 0)
	require.NoError(t, err)

	rec, ok, err = hist.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateJobComplete, rec.State)
	assert.Equal(t, int64(2), rec.Processed)
	assert.Equal(t, soql, rec.SOQL)
	assert.Equal(t, srv.URL, rec.InstanceURL)
}
