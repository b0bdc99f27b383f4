package infra

import (
	"regexp"
	"strings"
)

// ids do Salesforce: 15 ou 18 caracteres alfanuméricos (ex: 7508c00000AbCdEAAV).
var sfIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{15}([0-9A-Za-z]{3})?$`)

// RouteLabel normaliza "METHOD /path" trocando ids por ":id", para que
// contadores por rota não cresçam a cada job novo.
func RouteLabel(method, path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if isRecordID(seg) {
			segs[i] = ":id"
		}
	}

	label := strings.TrimSpace(strings.TrimSpace(method) + " " + strings.Join(segs, "/"))
	return label
}

func isRecordID(seg string) bool {
	if !sfIDPattern.MatchString(seg) {
		return false
	}
	// nomes de recurso (successfulResults, unprocessedrecords) casam o padrão
	// mas não têm dígitos
	return strings.ContainsAny(seg, "0123456789")
}
