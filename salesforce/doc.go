// Package salesforce monta conexões autenticadas com a API REST do Salesforce
// a partir de um bloco de configuração (YAML ou map), e fornece os adapters
// HTTP (http.RoundTripper) de throttling e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (sem net/http)
//   - application: decisões de throttle, vagas de concorrência, polling de jobs
//   - infra: token bucket, semáforo, stats (memória/Redis), histórico (SQLite)
//   - salesforce (este pacote): settings, fluxos de autenticação, Client REST e transports
//   - bulk: jobs do Bulk API 2.0 sobre um *Client
//
// Fluxo típico:
//
//	client, err := salesforce.Connection(ctx, `
//	auth_method: client_credentials
//	client_id: 3MVG9...
//	client_secret: s3cr3t
//	domain: acme
//	`)
//
// Os fluxos suportados são "password" (login SOAP ou OAuth username-password,
// quando client_id/client_secret estão presentes) e "client_credentials".
package salesforce
