package sftest

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "malformed form body")
		return
	}

	if r.PostForm.Get("client_id") != s.ClientID {
		writeOAuthError(w, "invalid_client_id", "client identifier invalid")
		return
	}
	if r.PostForm.Get("client_secret") != s.ClientSecret {
		writeOAuthError(w, "invalid_client", "invalid client credentials")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") != s.Username || r.PostForm.Get("password") != s.Password+s.SecurityToken {
			writeOAuthError(w, "invalid_grant", "authentication failure")
			return
		}
	case "client_credentials":
	default:
		writeOAuthError(w, "unsupported_grant_type", "grant type not supported")
		return
	}

	tok := s.IssueToken()
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": tok,
		"instance_url": s.URL,
		"id":           s.URL + "/id/00D000000000001/005000000000001",
		"token_type":   "Bearer",
		"issued_at":    strconv.FormatInt(time.Now().UnixMilli(), 10),
		"signature":    "fake",
	})
}

func writeOAuthError(w http.ResponseWriter, code, desc string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "error_description": desc})
}

type soapLoginRequest struct {
	Body struct {
		Login struct {
			Username string `xml:"username"`
			Password string `xml:"password"`
		} `xml:"login"`
	} `xml:"Body"`
}

func (s *Server) handleSOAPLogin(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeSOAPFault(w, "sf:INVALID_REQUEST", "INVALID_REQUEST", "unreadable body")
		return
	}
	var req soapLoginRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		writeSOAPFault(w, "soapenv:Client", "", "Unable to parse request: "+err.Error())
		return
	}

	login := req.Body.Login
	if login.Username != s.Username || login.Password != s.Password+s.SecurityToken {
		writeSOAPFault(w, "sf:INVALID_LOGIN", "INVALID_LOGIN",
			"Invalid username, password, security token; or user locked out.")
		return
	}

	tok := s.IssueToken()
	w.Header().Set("Content-Type", "text/xml;charset=UTF-8")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns="urn:partner.soap.sforce.com">
<soapenv:Body><loginResponse><result>
<metadataServerUrl>%[1]s/services/Soap/m/%[2]s/00D000000000001</metadataServerUrl>
<passwordExpired>false</passwordExpired>
<sandbox>false</sandbox>
<serverUrl>%[1]s/services/Soap/u/%[2]s/00D000000000001</serverUrl>
<sessionId>%[3]s</sessionId>
<userId>005000000000001AAA</userId>
</result></loginResponse></soapenv:Body>
</soapenv:Envelope>`, s.URL, version, tok)
}

func writeSOAPFault(w http.ResponseWriter, faultCode, exceptionCode, msg string) {
	w.Header().Set("Content-Type", "text/xml;charset=UTF-8")
	w.WriteHeader(http.StatusInternalServerError)

	var detail string
	if exceptionCode != "" {
		detail = `<detail><sf:LoginFault xsi:type="sf:LoginFault"><sf:exceptionCode>` + exceptionCode +
			`</sf:exceptionCode><sf:exceptionMessage>` + xmlText(msg) + `</sf:exceptionMessage></sf:LoginFault></detail>`
	}
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:sf="urn:fault.partner.soap.sforce.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
<soapenv:Body><soapenv:Fault><faultcode>%s</faultcode><faultstring>%s</faultstring>%s</soapenv:Fault></soapenv:Body>
</soapenv:Envelope>`, faultCode, xmlText(exceptionCode+": "+msg), detail)
}

func xmlText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
