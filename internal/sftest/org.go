package sftest

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Record é uma linha da org falsa: campo -> valor.
type Record map[string]string

type table struct {
	prefix  string
	records []Record
	deleted []Record
}

var keyPrefixes = map[string]string{
	"account":     "001",
	"contact":     "003",
	"opportunity": "006",
	"lead":        "00Q",
	"case":        "500",
}

// Seed cria (ou completa) um objeto com os registros dados. Registros sem Id
// recebem um.
func (s *Server) Seed(object string, records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(object)
	for _, rec := range records {
		cp := Record{}
		for k, v := range rec {
			cp[k] = v
		}
		if cp["Id"] == "" {
			cp["Id"] = t.prefix + compactID()
		}
		t.records = append(t.records, cp)
	}
}

// Records devolve uma cópia dos registros ativos do objeto.
func (s *Server) Records(object string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.org[strings.ToLower(object)]
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		cp := Record{}
		for k, v := range rec {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

func (s *Server) tableLocked(object string) *table {
	name := strings.ToLower(object)
	t, ok := s.org[name]
	if !ok {
		prefix, known := keyPrefixes[name]
		if !known {
			prefix = "a0" + strconv.Itoa(len(s.org)%10)
		}
		t = &table{prefix: prefix}
		s.org[name] = t
	}
	return t
}

func (r Record) get(field string) string {
	if v, ok := r[field]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(k, field) {
			return v
		}
	}
	return ""
}

// soql é o pedaço de SOQL que a org falsa entende:
// SELECT a, b FROM Obj [WHERE campo = 'valor'] [LIMIT n].
type soql struct {
	fields []string
	object string
	where  [2]string
	limit  int
}

var soqlPattern = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+(\w+)(?:\s+where\s+(\w+)\s*=\s*'([^']*)')?(?:\s+limit\s+(\d+))?\s*$`)

func parseSOQL(q string) (soql, bool) {
	m := soqlPattern.FindStringSubmatch(q)
	if m == nil {
		return soql{}, false
	}
	out := soql{object: m[2], where: [2]string{m[3], m[4]}}
	for _, f := range strings.Split(m[1], ",") {
		if f = strings.TrimSpace(f); f != "" {
			out.fields = append(out.fields, f)
		}
	}
	if m[5] != "" {
		out.limit, _ = strconv.Atoi(m[5])
	}
	return out, len(out.fields) > 0
}

// selectLocked executa a consulta e devolve as linhas na ordem dos campos.
func (s *Server) selectLocked(q soql, includeDeleted bool) ([][]string, bool) {
	t, ok := s.org[strings.ToLower(q.object)]
	if !ok {
		return nil, false
	}
	src := t.records
	if includeDeleted {
		src = append(append([]Record(nil), t.records...), t.deleted...)
	}

	var rows [][]string
	for _, rec := range src {
		if q.where[0] != "" && rec.get(q.where[0]) != q.where[1] {
			continue
		}
		row := make([]string, len(q.fields))
		for i, f := range q.fields {
			row[i] = rec.get(f)
		}
		rows = append(rows, row)
		if q.limit > 0 && len(rows) == q.limit {
			break
		}
	}
	return rows, true
}

// cursor guarda o resultado de uma query REST que ainda tem páginas.
type cursor struct {
	object string
	fields []string
	rows   [][]string
}

func (s *Server) handleQuery(includeDeleted bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := parseSOQL(r.URL.Query().Get("q"))
		if !ok {
			writeError(w, http.StatusBadRequest, "MALFORMED_QUERY", "unexpected token in query")
			return
		}

		s.mu.Lock()
		rows, found := s.selectLocked(q, includeDeleted)
		var id string
		if found {
			id = "01g" + compactID()
			s.cursors[id] = &cursor{object: q.object, fields: q.fields, rows: rows}
		}
		s.mu.Unlock()

		if !found {
			writeError(w, http.StatusBadRequest, "INVALID_TYPE", "sObject type '"+q.object+"' is not supported.")
			return
		}
		s.writeQueryPage(w, chi.URLParam(r, "version"), id, 0)
	}
}

func (s *Server) handleQueryMore(w http.ResponseWriter, r *http.Request) {
	id, offStr, ok := strings.Cut(chi.URLParam(r, "cursor"), "-")
	off, err := strconv.Atoi(offStr)
	if !ok || err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY_LOCATOR", "invalid query locator")
		return
	}
	s.writeQueryPage(w, chi.URLParam(r, "version"), id, off)
}

func (s *Server) writeQueryPage(w http.ResponseWriter, version, id string, off int) {
	s.mu.Lock()
	c, ok := s.cursors[id]
	pageSize := s.PageSize
	s.mu.Unlock()
	if !ok || off > len(c.rows) {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY_LOCATOR", "invalid query locator")
		return
	}
	if pageSize <= 0 {
		pageSize = 2000
	}

	end := min(off+pageSize, len(c.rows))
	records := make([]map[string]any, 0, end-off)
	for _, row := range c.rows[off:end] {
		rec := map[string]any{"attributes": map[string]string{"type": c.object}}
		for i, f := range c.fields {
			rec[f] = row[i]
		}
		records = append(records, rec)
	}

	resp := map[string]any{
		"totalSize": len(c.rows),
		"done":      end == len(c.rows),
		"records":   records,
	}
	if end < len(c.rows) {
		resp["nextRecordsUrl"] = "/services/data/" + version + "/query/" + id + "-" + strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}
