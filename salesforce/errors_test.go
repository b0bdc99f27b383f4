package salesforce

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAPIError_Formats(t *testing.T) {
	e := parseAPIError(400, "POST", "/jobs/query",
		[]byte(`[{"errorCode":"INVALIDJOB","message":"bad soql"},{"errorCode":"X","message":"second"}]`))
	assert.Equal(t, "INVALIDJOB", e.Code)
	assert.Equal(t, "bad soql; second", e.Message)

	e = parseAPIError(400, "POST", "/services/oauth2/token",
		[]byte(`{"error":"invalid_grant","error_description":"authentication failure"}`))
	assert.Equal(t, "invalid_grant", e.Code)
	assert.Equal(t, "authentication failure", e.Message)

	e = parseAPIError(502, "GET", "/x", []byte(strings.Repeat("a", 600)))
	assert.Equal(t, "", e.Code)
	assert.Len(t, e.Message, maxErrorBody+3)
}

func TestIsStatus(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &APIError{StatusCode: http.StatusNotFound})
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusBadRequest))
	assert.False(t, IsStatus(fmt.Errorf("plain"), http.StatusNotFound))
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{
		Method: AuthClientCredentials,
		Fields: []FieldError{{Field: "client_id", Message: "field required"}},
	}
	assert.Equal(t, "failed to validate Salesforce settings: auth_method=client_credentials; client_id: field required", err.Error())
}
