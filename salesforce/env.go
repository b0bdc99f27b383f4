package salesforce

import (
	"os"
	"strings"
)

// settingsKeys são os campos reconhecidos em qualquer fonte de settings.
var settingsKeys = []string{
	"auth_method", "api_version", "domain",
	"username", "password", "security_token",
	"client_id", "client_secret",
}

// SettingsMapFromEnv monta o map de settings a partir de variáveis de ambiente
// <prefix><CAMPO> (ex: SF_AUTH_METHOD, SF_CLIENT_ID). Variáveis vazias são ignoradas.
func SettingsMapFromEnv(prefix string) map[string]any {
	m := map[string]any{}
	for _, k := range settingsKeys {
		if v, ok := os.LookupEnv(prefix + strings.ToUpper(k)); ok && v != "" {
			m[k] = v
		}
	}
	return m
}

// SettingsFromEnv é SettingsMapFromEnv seguido de validação.
func SettingsFromEnv(prefix string) (Settings, error) {
	return SettingsFromMap(SettingsMapFromEnv(prefix))
}
