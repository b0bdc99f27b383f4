package bulk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format é a forma em que os resultados CSV são devolvidos.
type Format string

const (
	FormatDict   Format = "dict"
	FormatReader Format = "reader"
	FormatCSV    Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

func (f Format) Valid() bool {
	switch f {
	case FormatDict, FormatReader, FormatCSV:
		return true
	}
	return false
}

func (f Format) check() error {
	if f.Valid() {
		return nil
	}
	return fmt.Errorf("%w: '%s'. Allowed formats are: dict, reader, csv", ErrUnsupportedFormat, string(f))
}

// ParseFormat valida um nome de formato vindo de flag/config.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if err := f.check(); err != nil {
		return "", err
	}
	return f, nil
}

// Result carrega os dados num dos três formatos; só o campo do Format pedido
// é preenchido.
type Result struct {
	Format Format
	// Records (dict): uma entrada por linha, chave = coluna do header.
	Records []map[string]string
	// Rows (reader): todas as linhas, inclusive o header.
	Rows [][]string
	// CSV (csv): o texto como veio do Salesforce.
	CSV string
}

// Len é a quantidade de registros, sem contar o header.
func (r Result) Len() int {
	switch r.Format {
	case FormatDict:
		return len(r.Records)
	case FormatReader:
		if len(r.Rows) == 0 {
			return 0
		}
		return len(r.Rows) - 1
	default:
		rows, err := readRows(r.CSV)
		if err != nil || len(rows) == 0 {
			return 0
		}
		return len(rows) - 1
	}
}

func newResult(f Format, text string) (Result, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	res := Result{Format: f}
	switch f {
	case FormatCSV:
		res.CSV = text
	case FormatReader:
		rows, err := readRows(text)
		if err != nil {
			return Result{}, err
		}
		res.Rows = rows
	case FormatDict:
		rows, err := readRows(text)
		if err != nil {
			return Result{}, err
		}
		res.Records = toRecords(rows)
	default:
		return Result{}, f.check()
	}
	return res, nil
}

func readRows(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV result: %w", err)
		}
		rows = append(rows, row)
	}
}

// toRecords usa a primeira linha como header. Colunas faltando viram "".
func toRecords(rows [][]string) []map[string]string {
	if len(rows) == 0 {
		return []map[string]string{}
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// mergePages junta páginas CSV de um mesmo resultado, mantendo um só header.
func mergePages(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(pages[0])
	for _, p := range pages[1:] {
		p = strings.TrimPrefix(p, "\ufeff")
		_, rest, ok := strings.Cut(p, "\n")
		if !ok || rest == "" {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString(rest)
	}
	return b.String()
}
