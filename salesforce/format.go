package salesforce

import (
	"strconv"
	"strings"
)

// formatVersion normaliza versões vindas como número (64, 64.0) para "64.0".
func formatVersion(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
