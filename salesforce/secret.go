package salesforce

import "encoding/json"

const redacted = "**********"

// Secret guarda uma credencial sem deixá-la vazar em logs ou fmt.
// O valor só sai por Value().
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return `salesforce.Secret("` + s.String() + `")` }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalYAML() (any, error) { return s.String(), nil }
