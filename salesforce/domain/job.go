package domain

// JobState é o estado de um job no Bulk API 2.0, como o Salesforce reporta.
type JobState string

const (
	StateOpen           JobState = "Open"
	StateUploadComplete JobState = "UploadComplete"
	StateInProgress     JobState = "InProgress"
	StateJobComplete    JobState = "JobComplete"
	StateFailed         JobState = "Failed"
	StateAborted        JobState = "Aborted"
)

// Terminal indica se o job não muda mais de estado.
func (s JobState) Terminal() bool {
	switch s {
	case StateJobComplete, StateFailed, StateAborted:
		return true
	}
	return false
}

// Operation é a operação de um job (query ou DML).
type Operation string

const (
	OpQuery      Operation = "query"
	OpQueryAll   Operation = "queryAll"
	OpInsert     Operation = "insert"
	OpUpdate     Operation = "update"
	OpUpsert     Operation = "upsert"
	OpDelete     Operation = "delete"
	OpHardDelete Operation = "hardDelete"
)

func (o Operation) IsQuery() bool {
	return o == OpQuery || o == OpQueryAll
}

// ParseIngestOperation aceita os nomes da API e as variantes usadas na CLI
// (ex: "hard-delete").
func ParseIngestOperation(s string) (Operation, bool) {
	switch s {
	case "insert":
		return OpInsert, true
	case "update":
		return OpUpdate, true
	case "upsert":
		return OpUpsert, true
	case "delete":
		return OpDelete, true
	case "hardDelete", "hard-delete", "harddelete":
		return OpHardDelete, true
	}
	return "", false
}

// JobInfo é o corpo JSON de um job (jobs/query/{id} ou jobs/ingest/{id}).
//
// Datas ficam como string porque o Salesforce usa "+0000" em vez de RFC 3339.
type JobInfo struct {
	ID                     string    `json:"id"`
	Operation              Operation `json:"operation"`
	Object                 string    `json:"object"`
	CreatedByID            string    `json:"createdById,omitempty"`
	CreatedDate            string    `json:"createdDate,omitempty"`
	SystemModstamp         string    `json:"systemModstamp,omitempty"`
	State                  JobState  `json:"state"`
	ExternalIDFieldName    string    `json:"externalIdFieldName,omitempty"`
	ConcurrencyMode        string    `json:"concurrencyMode,omitempty"`
	ContentType            string    `json:"contentType,omitempty"`
	APIVersion             float64   `json:"apiVersion,omitempty"`
	JobType                string    `json:"jobType,omitempty"`
	LineEnding             string    `json:"lineEnding,omitempty"`
	ColumnDelimiter        string    `json:"columnDelimiter,omitempty"`
	NumberRecordsProcessed int64     `json:"numberRecordsProcessed"`
	NumberRecordsFailed    int64     `json:"numberRecordsFailed"`
	Retries                int       `json:"retries"`
	TotalProcessingTime    int64     `json:"totalProcessingTime"`
	ErrorMessage           string    `json:"errorMessage,omitempty"`
}
