package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedAuthMethod é retornado quando auth_method não é password nem client_credentials.
var ErrUnsupportedAuthMethod = errors.New("unexpected authentication method specified")

// ErrInvalidSettings envolve falhas de parse do texto de configuração.
var ErrInvalidSettings = errors.New("invalid settings string format")

// FieldError é um problema num campo do settings.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidationError junta todos os problemas encontrados num settings.
type ValidationError struct {
	Method AuthMethod
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+1)
	parts = append(parts, fmt.Sprintf("auth_method=%s", e.Method))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "failed to validate Salesforce settings: " + strings.Join(parts, "; ")
}

// Has indica se o campo aparece entre os problemas.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// AuthError é uma recusa do servidor de autenticação (SOAP fault ou erro OAuth).
type AuthError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("salesforce authentication failed (HTTP %d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("salesforce authentication failed: %s: %s", e.Code, e.Message)
}

// APIError é uma resposta não-2xx da API REST/Bulk.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("salesforce %s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// IsStatus facilita checagens do tipo errors.As + StatusCode.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

const maxErrorBody = 512

// parseAPIError lê os formatos de erro do Salesforce:
// [{"errorCode":"...","message":"..."}] (REST/Bulk) e
// {"error":"...","error_description":"..."} (OAuth).
func parseAPIError(status int, method, url string, body []byte) *APIError {
	e := &APIError{StatusCode: status, Method: method, URL: url}

	var list []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		e.Code = list[0].ErrorCode
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			msgs = append(msgs, item.Message)
		}
		e.Message = strings.Join(msgs, "; ")
		return e
	}

	var oauth struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauth); err == nil && oauth.Error != "" {
		e.Code = oauth.Error
		e.Message = oauth.Description
		return e
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	e.Message = text
	return e
}
