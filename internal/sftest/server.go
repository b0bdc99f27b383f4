// Package sftest é um Salesforce falso, em memória, para testes e para rodar
// a CLI localmente: OAuth token, login SOAP, REST query e jobs do Bulk API 2.0.
package sftest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Credenciais aceitas por padrão.
const (
	Username      = "integration@example.com"
	Password      = "p4ssw0rd"
	SecurityToken = "T0KEN"
	ClientID      = "3MVG9fake.client"
	ClientSecret  = "fake-client-secret"
)

// Server guarda o estado da org falsa. Os campos exportados podem ser
// ajustados antes das chamadas; o resto é protegido por mu.
type Server struct {
	Username      string
	Password      string
	SecurityToken string
	ClientID      string
	ClientSecret  string

	// PageSize é o tamanho padrão das páginas de query (REST e Bulk).
	PageSize int
	// PollsToComplete é quantas leituras em InProgress um job faz antes de terminar.
	PollsToComplete int

	// URL é a base pública (instance_url e serverUrl apontam para cá).
	URL string

	mu       sync.Mutex
	tokens   map[string]bool
	org      map[string]*table
	jobs     map[string]*job
	cursors  map[string]*cursor
	failNext string

	requests atomic.Int64
}

// New cria um Server sem escutar em lugar nenhum; use Handler com o seu listener.
func New() *Server {
	return &Server{
		Username:      Username,
		Password:      Password,
		SecurityToken: SecurityToken,
		ClientID:      ClientID,
		ClientSecret:  ClientSecret,
		PageSize:      2000,
		tokens:        map[string]bool{},
		org:           map[string]*table{},
		jobs:          map[string]*job{},
		cursors:       map[string]*cursor{},
	}
}

// Start sobe o Server num httptest.Server que é fechado no fim do teste.
func Start(tb testing.TB) *Server {
	tb.Helper()
	s := New()
	ts := httptest.NewServer(s.Handler())
	s.URL = ts.URL
	tb.Cleanup(ts.Close)
	return s
}

// Requests é o total de requisições recebidas.
func (s *Server) Requests() int64 { return s.requests.Load() }

// IssueToken cria um token válido sem passar por login.
func (s *Server) IssueToken() string {
	tok := "00D" + compactID() + "!" + compactID()
	s.mu.Lock()
	s.tokens[tok] = true
	s.mu.Unlock()
	return tok
}

// RevokeTokens invalida todas as sessões emitidas.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	s.tokens = map[string]bool{}
	s.mu.Unlock()
}

// FailNextJob faz o próximo job que terminar ir para Failed com msg.
func (s *Server) FailNextJob(msg string) {
	s.mu.Lock()
	s.failNext = msg
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.requests.Add(1)
			next.ServeHTTP(w, req)
		})
	})

	r.Post("/services/oauth2/token", s.handleToken)
	r.Post("/services/Soap/u/{version}", s.handleSOAPLogin)

	r.Route("/services/data/{version}", func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/query", s.handleQuery(false))
		r.Get("/query/", s.handleQuery(false))
		r.Get("/queryAll", s.handleQuery(true))
		r.Get("/queryAll/", s.handleQuery(true))
		r.Get("/query/{cursor}", s.handleQueryMore)

		r.Route("/jobs/query", func(r chi.Router) {
			r.Post("/", s.handleCreateQueryJob)
			r.Get("/{id}", s.handleJobInfo(kindQuery))
			r.Patch("/{id}", s.handleJobState(kindQuery))
			r.Delete("/{id}", s.handleJobDelete(kindQuery))
			r.Get("/{id}/results", s.handleQueryResults)
		})

		r.Route("/jobs/ingest", func(r chi.Router) {
			r.Post("/", s.handleCreateIngestJob)
			r.Get("/{id}", s.handleJobInfo(kindIngest))
			r.Patch("/{id}", s.handleJobState(kindIngest))
			r.Delete("/{id}", s.handleJobDelete(kindIngest))
			r.Put("/{id}/batches", s.handleUpload)
			r.Get("/{id}/successfulResults", s.handleIngestResults(resultSuccessful))
			r.Get("/{id}/failedResults", s.handleIngestResults(resultFailed))
			r.Get("/{id}/unprocessedrecords", s.handleIngestResults(resultUnprocessed))
		})
	})
	return r
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		valid := ok && s.tokens[tok]
		s.mu.Unlock()
		if !valid {
			writeError(w, http.StatusUnauthorized, "INVALID_SESSION_ID", "Session expired or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// compactID são 15 caracteres alfanuméricos derivados de um UUID.
func compactID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:15]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, []map[string]string{{"errorCode": code, "message": msg}})
}

func now() string { return time.Now().UTC().Format("2006-01-02T15:04:05.000+0000") }
