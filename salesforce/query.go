package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// QueryResult é uma página do endpoint REST query.
type QueryResult struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl,omitempty"`
	Records        []map[string]any `json:"records"`
}

// Query executa um SOQL e devolve só a primeira página.
func (c *Client) Query(ctx context.Context, soql string) (QueryResult, error) {
	return c.query(ctx, "query", soql)
}

// QueryMore busca a página apontada por nextRecordsUrl.
func (c *Client) QueryMore(ctx context.Context, next string) (QueryResult, error) {
	return c.getQueryPage(ctx, next)
}

// QueryAll segue nextRecordsUrl até done e junta os registros.
// includeDeleted usa o endpoint queryAll (registros apagados/arquivados).
func (c *Client) QueryAll(ctx context.Context, soql string, includeDeleted bool) (QueryResult, error) {
	endpoint := "query"
	if includeDeleted {
		endpoint = "queryAll"
	}

	res, err := c.query(ctx, endpoint, soql)
	if err != nil {
		return res, err
	}
	for !res.Done && res.NextRecordsURL != "" {
		page, err := c.getQueryPage(ctx, res.NextRecordsURL)
		if err != nil {
			return res, err
		}
		res.Records = append(res.Records, page.Records...)
		res.Done = page.Done
		res.NextRecordsURL = page.NextRecordsURL
	}
	res.NextRecordsURL = ""
	return res, nil
}

func (c *Client) query(ctx context.Context, endpoint, soql string) (QueryResult, error) {
	return c.getQueryPage(ctx, c.BaseURL()+endpoint+"/?q="+url.QueryEscape(soql))
}

func (c *Client) getQueryPage(ctx context.Context, u string) (QueryResult, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return QueryResult{}, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return QueryResult{}, err
	}
	defer resp.Body.Close()

	var res QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return QueryResult{}, fmt.Errorf("failed to decode query response: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return res, nil
}
