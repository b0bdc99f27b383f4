package salesforce

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Connect autentica com settings já validados e devolve o Client.
func Connect(ctx context.Context, s Settings, opts ...Option) (*Client, error) {
	o := buildOptions(opts)

	loginURL := o.loginURL
	if loginURL == "" {
		loginURL = s.LoginURL()
	}
	if s.APIVersion == "" {
		s.APIVersion = DefaultAPIVersion
	}

	authCtx := ctx
	if o.authTimeout > 0 {
		var cancel context.CancelFunc
		authCtx, cancel = context.WithTimeout(ctx, o.authTimeout)
		defer cancel()
	}

	var (
		sess session
		err  error
		flow string
	)
	switch s.AuthMethod {
	case AuthPassword:
		if s.ClientID != "" {
			flow = "oauth-password"
			sess, err = loginPasswordOAuth(authCtx, o.httpClient, loginURL, s)
		} else {
			flow = "soap-password"
			sess, err = loginPasswordSOAP(authCtx, o.httpClient, loginURL, s)
		}
	case AuthClientCredentials:
		flow = "client-credentials"
		sess, err = loginClientCredentials(authCtx, o.httpClient, loginURL, s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAuthMethod, s.AuthMethod)
	}
	if err != nil {
		o.logger.Warn("salesforce authentication failed",
			zap.String("flow", flow), zap.String("login_url", loginURL), zap.Error(err))
		return nil, err
	}

	o.logger.Info("salesforce connected",
		zap.String("flow", flow),
		zap.String("instance_url", sess.instanceURL),
		zap.String("api_version", s.APIVersion))

	return &Client{
		InstanceURL: sess.instanceURL,
		SessionID:   sess.sessionID,
		Version:     s.APIVersion,
		http:        o.httpClient,
		logger:      o.logger,
	}, nil
}

// Connection é o atalho "settings em texto": faz o parse do YAML/JSON e conecta.
func Connection(ctx context.Context, text string, opts ...Option) (*Client, error) {
	s, err := ParseSettings(text)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, s, opts...)
}

// ConnectionFromMap é o atalho "settings em map".
func ConnectionFromMap(ctx context.Context, m map[string]any, opts ...Option) (*Client, error) {
	s, err := SettingsFromMap(m)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, s, opts...)
}
