package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/types"
)

// Client is a thin JSON client for the tabulator HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// SchemaInfo mirrors GET /schema.
type SchemaInfo struct {
	Edition       string            `json:"edition"`
	Categories    []schema.Category `json:"categories"`
	Totals        []schema.Total    `json:"totals"`
	Filters       []schema.Filter   `json:"filters"`
	DefaultFilter string            `json:"default_filter"`
	Finals        *schema.Finals    `json:"finals,omitempty"`
}

type candidateRequest struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

type scoreAck struct {
	Status string            `json:"status"`
	Record model.ScoreRecord `json:"record"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

// Schema fetches the compiled schema and filter catalog.
func (c *Client) Schema(ctx context.Context) (*SchemaInfo, error) {
	var info SchemaInfo
	if err := c.do(ctx, http.MethodGet, "/schema", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats fetches service statistics.
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &st)
	return st, err
}

// Candidates lists active candidates of a partition.
func (c *Client) Candidates(ctx context.Context, gender string) ([]model.Candidate, error) {
	var list []model.Candidate
	err := c.do(ctx, http.MethodGet, "/candidates?gender="+url.QueryEscape(gender), nil, &list)
	return list, err
}

// AddCandidate registers a candidate.
func (c *Client) AddCandidate(ctx context.Context, number int, name, gender string) (model.Candidate, error) {
	var out model.Candidate
	err := c.do(ctx, http.MethodPost, "/candidates", candidateRequest{Number: number, Name: name, Gender: gender}, &out)
	return out, err
}

// Submit posts a mark and returns the accepted record.
func (c *Client) Submit(ctx context.Context, m Mark) (model.ScoreRecord, error) {
	var ack scoreAck
	if err := c.do(ctx, http.MethodPost, "/scores", m, &ack); err != nil {
		return model.ScoreRecord{}, err
	}
	return ack.Record, nil
}

// Results fetches a ranked report.
func (c *Client) Results(ctx context.Context, filter, gender string) (types.Report, error) {
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("gender", gender)
	var r types.Report
	err := c.do(ctx, http.MethodGet, "/results?"+q.Encode(), nil, &r)
	return r, err
}

// Finalists fetches the finals qualifiers of every partition.
func (c *Client) Finalists(ctx context.Context) ([]types.Report, error) {
	var out []types.Report
	err := c.do(ctx, http.MethodGet, "/finalists", nil, &out)
	return out, err
}

// Export downloads a rendered report and returns its content type and body.
func (c *Client) Export(ctx context.Context, filter, gender, format string) (string, []byte, error) {
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("gender", gender)
	q.Set("format", format)
	resp, err := c.send(ctx, http.MethodGet, "/results/export?"+q.Encode(), nil)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, statusError(resp.StatusCode, body)
	}
	return resp.Header.Get("Content-Type"), body, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(status int, body []byte) *StatusError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	return &StatusError{Status: status, Code: eb.Code, Message: eb.Message}
}
