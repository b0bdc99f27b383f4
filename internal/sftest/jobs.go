package sftest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"salesforce-bulk/salesforce/domain"
)

type jobKind int

const (
	kindQuery jobKind = iota
	kindIngest
)

type job struct {
	kind  jobKind
	info  domain.JobInfo
	soql  soql
	polls int

	// query
	rows [][]string

	// ingest
	header      []string
	uploaded    [][]string
	successful  [][]string
	failed      [][]string
	unprocessed [][]string
}

// Job devolve a última JobInfo de um job, para asserções em testes.
func (s *Server) Job(id string) (domain.JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.JobInfo{}, false
	}
	return j.info, true
}

func apiVersion(r *http.Request) float64 {
	v, _ := strconv.ParseFloat(strings.TrimPrefix(chi.URLParam(r, "version"), "v"), 64)
	return v
}

func (s *Server) newJobLocked(kind jobKind, info domain.JobInfo) *job {
	info.ID = "750" + compactID()
	info.CreatedByID = "005000000000001AAA"
	info.CreatedDate = now()
	info.SystemModstamp = info.CreatedDate
	info.ConcurrencyMode = "Parallel"
	info.ContentType = "CSV"
	info.LineEnding = "LF"
	info.ColumnDelimiter = "COMMA"
	j := &job{kind: kind, info: info, polls: s.PollsToComplete}
	s.jobs[info.ID] = j
	return j
}

func (s *Server) handleCreateQueryJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operation domain.Operation `json:"operation"`
		Query     string           `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	if !body.Operation.IsQuery() {
		writeError(w, http.StatusBadRequest, "INVALIDJOB", "Invalid job operation: "+string(body.Operation))
		return
	}
	q, ok := parseSOQL(body.Query)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALIDJOB", "unexpected token in query")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.org[strings.ToLower(q.object)]; !exists {
		writeError(w, http.StatusBadRequest, "INVALIDJOB", "sObject type '"+q.object+"' is not supported.")
		return
	}
	j := s.newJobLocked(kindQuery, domain.JobInfo{
		Operation:  body.Operation,
		Object:     q.object,
		State:      domain.StateUploadComplete,
		APIVersion: apiVersion(r),
		JobType:    "V2Query",
	})
	j.soql = q
	writeJSON(w, http.StatusOK, j.info)
}

func (s *Server) handleCreateIngestJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Object              string           `json:"object"`
		Operation           domain.Operation `json:"operation"`
		ExternalIDFieldName string           `json:"externalIdFieldName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	switch body.Operation {
	case domain.OpInsert, domain.OpUpdate, domain.OpUpsert, domain.OpDelete, domain.OpHardDelete:
	default:
		// aceita só os nomes exatos da API, como o Salesforce
		writeError(w, http.StatusBadRequest, "INVALIDJOB", "Invalid job operation: "+string(body.Operation))
		return
	}
	if body.Object == "" {
		writeError(w, http.StatusBadRequest, "INVALIDJOB", "object is required")
		return
	}
	if body.Operation == domain.OpUpsert && body.ExternalIDFieldName == "" {
		writeError(w, http.StatusBadRequest, "INVALIDJOB", "External ID was blank for "+body.Object+".")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableLocked(body.Object)
	j := s.newJobLocked(kindIngest, domain.JobInfo{
		Operation:           body.Operation,
		Object:              body.Object,
		State:               domain.StateOpen,
		ExternalIDFieldName: body.ExternalIDFieldName,
		APIVersion:          apiVersion(r),
		JobType:             "V2Ingest",
	})
	writeJSON(w, http.StatusOK, j.info)
}

// lookupLocked resolve o job do path e confere o tipo.
func (s *Server) lookupLocked(w http.ResponseWriter, r *http.Request, kind jobKind) *job {
	j, ok := s.jobs[chi.URLParam(r, "id")]
	if !ok || j.kind != kind {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist")
		return nil
	}
	return j
}

func (s *Server) handleJobInfo(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		j := s.lookupLocked(w, r, kind)
		if j == nil {
			return
		}
		s.advanceLocked(j)
		writeJSON(w, http.StatusOK, j.info)
	}
}

// advanceLocked anda um passo no ciclo de vida a cada leitura do job.
func (s *Server) advanceLocked(j *job) {
	switch j.info.State {
	case domain.StateUploadComplete:
		j.info.State = domain.StateInProgress
	case domain.StateInProgress:
		if j.polls > 0 {
			j.polls--
			return
		}
		s.finishLocked(j)
	}
	j.info.SystemModstamp = now()
}

func (s *Server) finishLocked(j *job) {
	if s.failNext != "" {
		j.info.State = domain.StateFailed
		j.info.ErrorMessage = s.failNext
		s.failNext = ""
		j.unprocessed = j.uploaded
		return
	}

	if j.kind == kindQuery {
		rows, _ := s.selectLocked(j.soql, j.info.Operation == domain.OpQueryAll)
		j.rows = rows
		j.info.NumberRecordsProcessed = int64(len(rows))
		j.info.State = domain.StateJobComplete
		return
	}

	if len(j.uploaded) == 0 {
		j.info.State = domain.StateFailed
		j.info.ErrorMessage = "InvalidBatch : Failed to process query: no data uploaded"
		return
	}
	for _, row := range j.uploaded {
		s.applyLocked(j, row)
	}
	j.info.NumberRecordsProcessed = int64(len(j.uploaded))
	j.info.NumberRecordsFailed = int64(len(j.failed))
	j.info.State = domain.StateJobComplete
}

// applyLocked processa uma linha do upload. Qualquer valor contendo "FAIL"
// é recusado como se uma validation rule tivesse disparado.
func (s *Server) applyLocked(j *job, row []string) {
	rec := Record{}
	for i, col := range j.header {
		if i < len(row) {
			rec[col] = row[i]
		}
	}
	fail := func(msg string) {
		j.failed = append(j.failed, append([]string{rec.get("Id"), msg}, row...))
	}
	for _, v := range row {
		if strings.Contains(v, "FAIL") {
			fail("FIELD_CUSTOM_VALIDATION_EXCEPTION:rejected by validation rule:--")
			return
		}
	}

	t := s.tableLocked(j.info.Object)
	idx := func(field, value string) int {
		for i, existing := range t.records {
			if value != "" && existing.get(field) == value {
				return i
			}
		}
		return -1
	}

	switch j.info.Operation {
	case domain.OpInsert:
		rec["Id"] = t.prefix + compactID()
		t.records = append(t.records, rec)
		j.successful = append(j.successful, append([]string{rec["Id"], "true"}, row...))

	case domain.OpUpdate:
		i := idx("Id", rec.get("Id"))
		if i < 0 {
			fail("INVALID_CROSS_REFERENCE_KEY:invalid cross reference id:--")
			return
		}
		for k, v := range rec {
			t.records[i][k] = v
		}
		j.successful = append(j.successful, append([]string{t.records[i]["Id"], "false"}, row...))

	case domain.OpUpsert:
		ext := j.info.ExternalIDFieldName
		if rec.get(ext) == "" {
			fail("MISSING_ARGUMENT:" + ext + " not specified:--")
			return
		}
		if i := idx(ext, rec.get(ext)); i >= 0 {
			for k, v := range rec {
				t.records[i][k] = v
			}
			j.successful = append(j.successful, append([]string{t.records[i]["Id"], "false"}, row...))
			return
		}
		rec["Id"] = t.prefix + compactID()
		t.records = append(t.records, rec)
		j.successful = append(j.successful, append([]string{rec["Id"], "true"}, row...))

	case domain.OpDelete, domain.OpHardDelete:
		i := idx("Id", rec.get("Id"))
		if i < 0 {
			fail("ENTITY_IS_DELETED:entity is deleted:--")
			return
		}
		removed := t.records[i]
		t.records = append(t.records[:i], t.records[i+1:]...)
		if j.info.Operation == domain.OpDelete {
			t.deleted = append(t.deleted, removed)
		}
		j.successful = append(j.successful, append([]string{removed["Id"], "false"}, row...))
	}
}

func (s *Server) handleJobState(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			State domain.JobState `json:"state"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		j := s.lookupLocked(w, r, kind)
		if j == nil {
			return
		}

		switch {
		case body.State == domain.StateAborted && !j.info.State.Terminal():
			j.info.State = domain.StateAborted
			j.unprocessed = j.uploaded
		case body.State == domain.StateUploadComplete && kind == kindIngest && j.info.State == domain.StateOpen:
			j.info.State = domain.StateUploadComplete
		default:
			writeError(w, http.StatusBadRequest, "INVALIDJOBSTATE",
				"Invalid state transition from "+string(j.info.State)+" to "+string(body.State))
			return
		}
		j.info.SystemModstamp = now()
		writeJSON(w, http.StatusOK, j.info)
	}
}

func (s *Server) handleJobDelete(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		j := s.lookupLocked(w, r, kind)
		if j == nil {
			return
		}
		if !j.info.State.Terminal() && j.info.State != domain.StateOpen {
			writeError(w, http.StatusBadRequest, "INVALIDJOBSTATE", "Job must be closed before it can be deleted")
			return
		}
		delete(s.jobs, j.info.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		writeError(w, http.StatusBadRequest, "INVALIDCONTENTTYPE", "Content-Type must be text/csv, got "+ct)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALIDBATCH", err.Error())
		return
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil || len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "INVALIDBATCH", "unable to parse CSV")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.lookupLocked(w, r, kindIngest)
	if j == nil {
		return
	}
	if j.info.State != domain.StateOpen {
		writeError(w, http.StatusConflict, "INVALIDJOBSTATE", "Job is not open for data upload")
		return
	}
	if j.header != nil && strings.Join(j.header, ",") != strings.Join(rows[0], ",") {
		writeError(w, http.StatusBadRequest, "INVALIDBATCH", "CSV header does not match the previous upload")
		return
	}
	j.header = rows[0]
	j.uploaded = append(j.uploaded, rows[1:]...)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	j := s.lookupLocked(w, r, kindQuery)
	if j == nil {
		s.mu.Unlock()
		return
	}
	if j.info.State != domain.StateJobComplete {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "INVALIDJOBSTATE", "Job is not in JobComplete state")
		return
	}
	rows, fields, pageSize := j.rows, j.soql.fields, s.PageSize
	s.mu.Unlock()

	if n, err := strconv.Atoi(r.URL.Query().Get("maxRecords")); err == nil && n > 0 {
		pageSize = n
	}
	if pageSize <= 0 {
		pageSize = len(rows) + 1
	}
	off := 0
	if loc := r.URL.Query().Get("locator"); loc != "" {
		n, err := strconv.Atoi(loc)
		if err != nil || n < 0 || n > len(rows) {
			writeError(w, http.StatusBadRequest, "INVALIDLOCATOR", "invalid locator "+loc)
			return
		}
		off = n
	}
	end := min(off+pageSize, len(rows))

	locator := "null"
	if end < len(rows) {
		locator = strconv.Itoa(end)
	}
	w.Header().Set("Sforce-Locator", locator)
	w.Header().Set("Sforce-NumberOfRecords", strconv.Itoa(end-off))
	writeCSV(w, fields, rows[off:end])
}

type resultKind int

const (
	resultSuccessful resultKind = iota
	resultFailed
	resultUnprocessed
)

func (s *Server) handleIngestResults(kind resultKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		j := s.lookupLocked(w, r, kindIngest)
		if j == nil {
			s.mu.Unlock()
			return
		}
		if !j.info.State.Terminal() {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "INVALIDJOBSTATE", "Job is still being processed")
			return
		}

		var header []string
		var rows [][]string
		switch kind {
		case resultSuccessful:
			header = append([]string{"sf__Id", "sf__Created"}, j.header...)
			rows = j.successful
		case resultFailed:
			header = append([]string{"sf__Id", "sf__Error"}, j.header...)
			rows = j.failed
		case resultUnprocessed:
			header = j.header
			rows = j.unprocessed
		}
		s.mu.Unlock()

		writeCSV(w, header, rows)
	}
}

func writeCSV(w http.ResponseWriter, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	if header != nil {
		_ = cw.Write(header)
	}
	_ = cw.WriteAll(rows)
}
