package salesforce

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type AuthMethod string

const (
	AuthPassword          AuthMethod = "password"
	AuthClientCredentials AuthMethod = "client_credentials"
)

const (
	DefaultAPIVersion = "64.0"
	DefaultDomain     = "login"
)

// Settings é a configuração validada de uma conexão.
//
// Campos de segredo usam Secret e não aparecem em logs nem em %v.
type Settings struct {
	AuthMethod AuthMethod `yaml:"auth_method"`
	APIVersion string     `yaml:"api_version"`
	Domain     string     `yaml:"domain"`

	// password
	Username      string `yaml:"username,omitempty"`
	Password      Secret `yaml:"password,omitempty"`
	SecurityToken Secret `yaml:"security_token,omitempty"`

	// client_credentials; no fluxo password, se presentes, trocam o login SOAP
	// pelo grant OAuth username-password.
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret Secret `yaml:"client_secret,omitempty"`
}

var (
	versionPattern = regexp.MustCompile(`^\d+\.\d+$`)
	majorPattern   = regexp.MustCompile(`^\d+$`)
	domainPattern  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)
)

// ParseSettings lê um settings em YAML (JSON também serve, é um subconjunto).
// Texto vazio vira um map vazio, que falha por falta de auth_method.
//
// Escalares são lidos pelo texto literal: "password: 0123" é a senha "0123",
// não o octal 83.
func ParseSettings(text string) (Settings, error) {
	nodes := map[string]yaml.Node{}
	if err := yaml.Unmarshal([]byte(text), &nodes); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	raw := make(map[string]any, len(nodes))
	for k, n := range nodes {
		v, err := literal(&n)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, k, err)
		}
		raw[k] = v
	}
	return SettingsFromMap(raw)
}

// literal devolve o texto de um escalar YAML sem resolver a tag (int, float,
// bool viram a string escrita). Listas e maps são decodificados para que a
// validação recuse o campo.
func literal(n *yaml.Node) (any, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	if n.ShortTag() == "!!null" {
		return nil, nil
	}
	return n.Value, nil
}

// SettingsFromMap valida um settings já em forma de map.
// As chaves são comparadas sem diferenciar maiúsculas (AUTH_METHOD == auth_method).
func SettingsFromMap(m map[string]any) (Settings, error) {
	cfg := make(map[string]any, len(m))
	for k, v := range m {
		cfg[strings.ToLower(strings.TrimSpace(k))] = v
	}

	method, _, err := scalar(cfg, "auth_method")
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrUnsupportedAuthMethod, cfg["auth_method"])
	}

	switch AuthMethod(method) {
	case AuthPassword:
		return passwordSettings(cfg)
	case AuthClientCredentials:
		return clientCredentialsSettings(cfg)
	default:
		if method == "" {
			return Settings{}, fmt.Errorf("%w: <none>", ErrUnsupportedAuthMethod)
		}
		return Settings{}, fmt.Errorf("%w: %s", ErrUnsupportedAuthMethod, method)
	}
}

// fieldReader acumula erros de campo enquanto lê o map.
type fieldReader struct {
	cfg  map[string]any
	errs []FieldError
}

func (r *fieldReader) fail(field, msg string) {
	r.errs = append(r.errs, FieldError{Field: field, Message: msg})
}

// required exige presença; nonEmpty também recusa string vazia.
func (r *fieldReader) required(field string, nonEmpty bool) string {
	v, ok, err := scalar(r.cfg, field)
	switch {
	case err != nil:
		r.fail(field, err.Error())
	case !ok:
		r.fail(field, "field required")
	case nonEmpty && v == "":
		r.fail(field, "must not be empty")
	}
	return v
}

func (r *fieldReader) optional(field, def string) string {
	v, ok, err := scalar(r.cfg, field)
	if err != nil {
		r.fail(field, err.Error())
		return def
	}
	if !ok || v == "" {
		return def
	}
	return v
}

func (r *fieldReader) version() string {
	v := r.cfg["api_version"]
	var out string
	switch n := v.(type) {
	case int:
		out = formatVersion(float64(n))
	case float64:
		out = formatVersion(n)
	default:
		out = r.optional("api_version", DefaultAPIVersion)
	}
	out = strings.TrimPrefix(out, "v")
	if majorPattern.MatchString(out) {
		out += ".0"
	}
	if !versionPattern.MatchString(out) {
		r.fail("api_version", fmt.Sprintf("invalid API version %q (expected e.g. %q)", out, DefaultAPIVersion))
	}
	return out
}

func (r *fieldReader) result(method AuthMethod) error {
	if len(r.errs) == 0 {
		return nil
	}
	return &ValidationError{Method: method, Fields: r.errs}
}

func passwordSettings(cfg map[string]any) (Settings, error) {
	r := &fieldReader{cfg: cfg}
	s := Settings{
		AuthMethod:    AuthPassword,
		Username:      r.required("username", true),
		Password:      Secret(r.required("password", true)),
		SecurityToken: Secret(r.required("security_token", false)),
		Domain:        r.optional("domain", DefaultDomain),
		APIVersion:    r.version(),
		ClientID:      r.optional("client_id", ""),
		ClientSecret:  Secret(r.optional("client_secret", "")),
	}
	if s.Domain != "login" && s.Domain != "test" {
		r.fail("domain", fmt.Sprintf("must be one of \"login\", \"test\" (got %q)", s.Domain))
	}
	if (s.ClientID == "") != (s.ClientSecret == "") {
		r.fail("client_id", "client_id and client_secret must be set together")
	}
	return s, r.result(AuthPassword)
}

func clientCredentialsSettings(cfg map[string]any) (Settings, error) {
	r := &fieldReader{cfg: cfg}
	s := Settings{
		AuthMethod:   AuthClientCredentials,
		ClientID:     r.required("client_id", true),
		ClientSecret: Secret(r.required("client_secret", true)),
		Domain:       r.optional("domain", DefaultDomain),
		APIVersion:   r.version(),
	}
	if !domainPattern.MatchString(s.Domain) {
		r.fail("domain", fmt.Sprintf("invalid My Domain name %q", s.Domain))
	}
	return s, r.result(AuthClientCredentials)
}

// scalar lê um campo como string. Números e booleanos só chegam aqui por
// SettingsFromMap e são recusados; api_version numérico é tratado em version.
func scalar(cfg map[string]any, field string) (string, bool, error) {
	v, ok := cfg[field]
	if !ok || v == nil {
		return "", false, nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true, nil
	case Secret:
		return t.Value(), true, nil
	default:
		return "", true, fmt.Errorf("must be a string (got %T)", v)
	}
}

// LoginURL é o endpoint de autenticação derivado do domain:
//
//	login -> https://login.salesforce.com
//	test  -> https://test.salesforce.com
//	x     -> https://x.my.salesforce.com
func (s Settings) LoginURL() string {
	switch s.Domain {
	case "", "login":
		return "https://login.salesforce.com"
	case "test":
		return "https://test.salesforce.com"
	default:
		return "https://" + s.Domain + ".my.salesforce.com"
	}
}
