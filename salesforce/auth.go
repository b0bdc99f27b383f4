package salesforce

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// session é o que qualquer fluxo de autenticação produz.
type session struct {
	instanceURL string
	sessionID   string
}

const soapClientName = "salesforce-bulk"

// loginPasswordSOAP faz o login do partner WSDL (username + password||token),
// o mesmo fluxo que não exige connected app.
func loginPasswordSOAP(ctx context.Context, hc *http.Client, loginURL string, s Settings) (session, error) {
	var envelope bytes.Buffer
	envelope.WriteString(`<?xml version="1.0" encoding="utf-8" ?>
<env:Envelope xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:env="http://schemas.xmlsoap.org/soap/envelope/" xmlns:urn="urn:partner.soap.sforce.com">
<env:Header><urn:CallOptions><urn:client>` + soapClientName + `</urn:client><urn:defaultNamespace>sf</urn:defaultNamespace></urn:CallOptions></env:Header>
<env:Body><n1:login xmlns:n1="urn:partner.soap.sforce.com"><n1:username>`)
	_ = xml.EscapeText(&envelope, []byte(s.Username))
	envelope.WriteString(`</n1:username><n1:password>`)
	_ = xml.EscapeText(&envelope, []byte(s.Password.Value()+s.SecurityToken.Value()))
	envelope.WriteString(`</n1:password></n1:login></env:Body>
</env:Envelope>`)

	endpoint := loginURL + "/services/Soap/u/" + s.APIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &envelope)
	if err != nil {
		return session{}, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("charset", "UTF-8")
	req.Header.Set("SOAPAction", "login")

	resp, err := hc.Do(req)
	if err != nil {
		return session{}, fmt.Errorf("salesforce login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return session{}, fmt.Errorf("failed to read login response: %w", err)
	}
	return parseSOAPLogin(resp.StatusCode, body)
}

type soapLoginEnvelope struct {
	Body struct {
		LoginResponse struct {
			Result struct {
				SessionID string `xml:"sessionId"`
				ServerURL string `xml:"serverUrl"`
			} `xml:"result"`
		} `xml:"loginResponse"`
		Fault *struct {
			FaultCode   string `xml:"faultcode"`
			FaultString string `xml:"faultstring"`
			Detail      struct {
				LoginFault struct {
					ExceptionCode    string `xml:"exceptionCode"`
					ExceptionMessage string `xml:"exceptionMessage"`
				} `xml:"LoginFault"`
			} `xml:"detail"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

func parseSOAPLogin(status int, body []byte) (session, error) {
	var env soapLoginEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		if status >= 300 {
			return session{}, &AuthError{StatusCode: status, Code: "HTTP", Message: strings.TrimSpace(string(body))}
		}
		return session{}, fmt.Errorf("failed to parse login response: %w", err)
	}

	if f := env.Body.Fault; f != nil {
		ae := &AuthError{StatusCode: status, Code: f.Detail.LoginFault.ExceptionCode, Message: f.Detail.LoginFault.ExceptionMessage}
		if ae.Code == "" {
			ae.Code = f.FaultCode
		}
		if ae.Message == "" {
			ae.Message = f.FaultString
		}
		return session{}, ae
	}

	res := env.Body.LoginResponse.Result
	if res.SessionID == "" || res.ServerURL == "" {
		return session{}, &AuthError{StatusCode: status, Code: "INVALID_RESPONSE", Message: "login response has no sessionId/serverUrl"}
	}

	u, err := url.Parse(res.ServerURL)
	if err != nil || u.Host == "" {
		return session{}, &AuthError{StatusCode: status, Code: "INVALID_RESPONSE", Message: "unparseable serverUrl " + res.ServerURL}
	}
	return session{instanceURL: u.Scheme + "://" + u.Host, sessionID: res.SessionID}, nil
}

func tokenURL(loginURL string) string { return loginURL + "/services/oauth2/token" }

// loginPasswordOAuth usa o grant username-password de uma connected app.
func loginPasswordOAuth(ctx context.Context, hc *http.Client, loginURL string, s Settings) (session, error) {
	cfg := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret.Value(),
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL(loginURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	tok, err := cfg.PasswordCredentialsToken(ctx, s.Username, s.Password.Value()+s.SecurityToken.Value())
	if err != nil {
		return session{}, oauthError(err)
	}
	return sessionFromToken(tok)
}

// loginClientCredentials usa o grant client_credentials (connected app com
// "Run As" configurado).
func loginClientCredentials(ctx context.Context, hc *http.Client, loginURL string, s Settings) (session, error) {
	cfg := &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret.Value(),
		TokenURL:     tokenURL(loginURL),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	tok, err := cfg.Token(ctx)
	if err != nil {
		return session{}, oauthError(err)
	}
	return sessionFromToken(tok)
}

func sessionFromToken(tok *oauth2.Token) (session, error) {
	instance, _ := tok.Extra("instance_url").(string)
	if instance == "" {
		return session{}, &AuthError{Code: "INVALID_RESPONSE", Message: "token response has no instance_url"}
	}
	if tok.AccessToken == "" {
		return session{}, &AuthError{Code: "INVALID_RESPONSE", Message: "token response has no access_token"}
	}
	return session{instanceURL: strings.TrimRight(instance, "/"), sessionID: tok.AccessToken}, nil
}

func oauthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ae := &AuthError{Code: re.ErrorCode, Message: re.ErrorDescription}
		if re.Response != nil {
			ae.StatusCode = re.Response.StatusCode
		}
		if ae.Code == "" {
			ae.Code = "HTTP"
			ae.Message = strings.TrimSpace(string(re.Body))
		}
		return ae
	}
	return fmt.Errorf("salesforce token request: %w", err)
}
