// Package client is a thin HTTP client for the investigate service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and decodes the envelope's data into out and its
// meta into meta. Either may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out, meta interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	if meta != nil && len(env.Meta) > 0 {
		if err := json.Unmarshal(env.Meta, meta); err != nil {
			return fmt.Errorf("failed to decode meta: %w", err)
		}
	}
	return nil
}

func (c *Client) ListInvestigations(ctx context.Context, opts ListOptions) ([]Investigation, *Pagination, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Priority != "" {
		q.Set("priority", opts.Priority)
	}
	if opts.EntityType != "" {
		q.Set("entity_type", opts.EntityType)
	}

	path := "/api/v1/investigations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var invs []Investigation
	var page Pagination
	if err := c.do(ctx, http.MethodGet, path, nil, &invs, &page); err != nil {
		return nil, nil, err
	}
	return invs, &page, nil
}

func (c *Client) GetInvestigation(ctx context.Context, id string) (*Investigation, error) {
	var inv Investigation
	if err := c.do(ctx, http.MethodGet, "/api/v1/investigations/"+url.PathEscape(id), nil, &inv, nil); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) LinkEntities(ctx context.Context, req *LinkRequest) (*Investigation, error) {
	var inv Investigation
	if err := c.do(ctx, http.MethodPost, "/api/v1/investigations/link", req, &inv, nil); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) UpdateInvestigation(ctx context.Context, id string, req *UpdateRequest) (*Investigation, error) {
	var inv Investigation
	if err := c.do(ctx, http.MethodPatch, "/api/v1/investigations/"+url.PathEscape(id), req, &inv, nil); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) AnalyzeInvestigation(ctx context.Context, id string) (*AnalysisResult, error) {
	var res AnalysisResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/investigations/"+url.PathEscape(id)+"/analyze", nil, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) EscalateInvestigation(ctx context.Context, id, reason string) (*Investigation, error) {
	var inv Investigation
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "/api/v1/investigations/"+url.PathEscape(id)+"/escalate", body, &inv, nil); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) VerifyAudit(ctx context.Context, id string) (*AuditVerification, error) {
	var res AuditVerification
	if err := c.do(ctx, http.MethodGet, "/api/v1/investigations/"+url.PathEscape(id)+"/audit/verify", nil, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) InvestigationTimeline(ctx context.Context, id string) (*Timeline, error) {
	var res Timeline
	if err := c.do(ctx, http.MethodGet, "/api/v1/investigations/"+url.PathEscape(id)+"/timeline", nil, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Timeline(ctx context.Context, caseID, entity string) (*Timeline, error) {
	q := url.Values{}
	if caseID != "" {
		q.Set("case_id", caseID)
	}
	if entity != "" {
		q.Set("entity", entity)
	}

	var res Timeline
	if err := c.do(ctx, http.MethodGet, "/api/v1/timeline?"+q.Encode(), nil, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) LinkedTimeline(ctx context.Context, req *LinkedTimelineRequest) (*Timeline, error) {
	var res Timeline
	if err := c.do(ctx, http.MethodPost, "/api/v1/timeline/linked", req, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportTimeline downloads a timeline export. The body is returned as sent.
func (c *Client) ExportTimeline(ctx context.Context, caseID, entity, format string) (*Export, error) {
	q := url.Values{}
	if caseID != "" {
		q.Set("case_id", caseID)
	}
	if entity != "" {
		q.Set("entity", entity)
	}
	if format != "" {
		q.Set("format", format)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/timeline/export?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Del("Accept")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var env envelope
		if json.Unmarshal(body, &env) == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	exp := &Export{ContentType: resp.Header.Get("Content-Type"), Body: body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		exp.Filename = params["filename"]
	}
	return exp, nil
}

func (c *Client) Neighbors(ctx context.Context, key string, minStrength float64, limit int) ([]Neighbor, error) {
	q := url.Values{}
	if minStrength > 0 {
		q.Set("min_strength", strconv.FormatFloat(minStrength, 'f', -1, 64))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/entities/" + url.PathEscape(key) + "/neighbors"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []Neighbor
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) IngestRecords(ctx context.Context, batch *RecordBatch) (*IngestResult, error) {
	var res IngestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/records", batch, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}
