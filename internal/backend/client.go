// Package backend dispatches user actions to the remote assistant over
// HTTP+JSON and normalizes whatever comes back.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"ragdesk/internal/domain"
)

const maxResponseBytes = 10 << 20

// Endpoints are request paths relative to the base URL.
type Endpoints struct {
	Send       string
	UploadFile string
	UploadText string
	Scrape     string
	Plan       string
	Health     string
}

// DefaultEndpoints matches the assistant's Flask routes.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Send:       "/api/invoke_agent",
		UploadFile: "/api/upload-file",
		UploadText: "/api/upload-text",
		Scrape:     "/api/scrape-website",
		Plan:       "/api/travelsgent",
		Health:     "/api/list_documents",
	}
}

// Client implements domain.Backend. Every call performs exactly one request;
// nothing is retried.
type Client struct {
	baseURL   string
	endpoints Endpoints
	http      *http.Client
	logger    *slog.Logger
}

// ClientConfig holds the connection settings for the assistant backend.
type ClientConfig struct {
	BaseURL    string
	Endpoints  Endpoints
	Timeout    time.Duration
	HTTPClient *http.Client // optional: overrides Timeout
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:5000"
	}
	def := DefaultEndpoints()
	if cfg.Endpoints.Send == "" {
		cfg.Endpoints.Send = def.Send
	}
	if cfg.Endpoints.UploadFile == "" {
		cfg.Endpoints.UploadFile = def.UploadFile
	}
	if cfg.Endpoints.UploadText == "" {
		cfg.Endpoints.UploadText = def.UploadText
	}
	if cfg.Endpoints.Scrape == "" {
		cfg.Endpoints.Scrape = def.Scrape
	}
	if cfg.Endpoints.Plan == "" {
		cfg.Endpoints.Plan = def.Plan
	}
	if cfg.Endpoints.Health == "" {
		cfg.Endpoints.Health = def.Health
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		endpoints: cfg.Endpoints,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
	}
}

type queryRequest struct {
	Query  string             `json:"query"`
	Config domain.AgentConfig `json:"config"`
}

type textRequest struct {
	Text   string             `json:"text"`
	Config domain.AgentConfig `json:"config"`
}

type scrapeRequest struct {
	URL    string             `json:"url"`
	Config domain.AgentConfig `json:"config"`
}

// Send asks the assistant a question.
func (c *Client) Send(ctx context.Context, text string, cfg domain.AgentConfig) (*domain.Answer, error) {
	return c.postJSON(ctx, domain.ActionSend, c.endpoints.Send, queryRequest{Query: text, Config: cfg})
}

// UploadText submits free text for ingestion.
func (c *Client) UploadText(ctx context.Context, text string, cfg domain.AgentConfig) (*domain.Answer, error) {
	return c.postJSON(ctx, domain.ActionUploadText, c.endpoints.UploadText, textRequest{Text: text, Config: cfg})
}

// Scrape asks the backend to scrape and ingest a web page.
func (c *Client) Scrape(ctx context.Context, url string, cfg domain.AgentConfig) (*domain.Answer, error) {
	return c.postJSON(ctx, domain.ActionScrape, c.endpoints.Scrape, scrapeRequest{URL: url, Config: cfg})
}

// UploadFile sends the blob as multipart form data with the agent config
// flattened into form fields.
func (c *Client) UploadFile(ctx context.Context, file domain.FileRef, cfg domain.AgentConfig) (*domain.Answer, error) {
	action := domain.ActionUploadFile

	src, err := file.Open()
	if err != nil {
		return nil, &DispatchError{Action: action, Err: fmt.Errorf("open %s: %w", file.Name, err)}
	}
	defer src.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, &DispatchError{Action: action, Err: fmt.Errorf("build form: %w", err)}
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, &DispatchError{Action: action, Err: fmt.Errorf("read %s: %w", file.Name, err)}
	}
	for k, v := range cfg.Fields() {
		if err := mw.WriteField(k, v); err != nil {
			return nil, &DispatchError{Action: action, Err: fmt.Errorf("build form: %w", err)}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &DispatchError{Action: action, Err: fmt.Errorf("build form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoints.UploadFile, &buf)
	if err != nil {
		return nil, &DispatchError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("uploading file", "name", file.Name, "bytes", buf.Len())
	return c.do(action, req)
}

func (c *Client) postJSON(ctx context.Context, action domain.Action, path string, payload any) (*domain.Answer, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &DispatchError{Action: action, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, &DispatchError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(action, req)
}

func (c *Client) do(action domain.Action, req *http.Request) (*domain.Answer, error) {
	body, status, err := c.roundTrip(req)
	if err != nil {
		return nil, &DispatchError{Action: action, StatusCode: status, Err: err}
	}
	ans, err := normalize(body)
	if err != nil {
		return nil, &DispatchError{Action: action, StatusCode: status, Err: err}
	}
	return ans, nil
}

// roundTrip performs the request and returns the body of a 2xx response.
func (c *Client) roundTrip(req *http.Request) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("backend response",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"latency", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, errors.New(errorSnippet(body))
	}
	return body, resp.StatusCode, nil
}

// PlanTrip posts a travel-planner query and returns the raw response body.
func (c *Client) PlanTrip(ctx context.Context, query any) ([]byte, error) {
	data, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoints.Plan, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, status, err := c.roundTrip(req)
	if err != nil {
		if status > 0 {
			return nil, fmt.Errorf("plan trip: HTTP %d: %w", status, err)
		}
		return nil, fmt.Errorf("plan trip: %w", err)
	}
	return body, nil
}

// Healthy checks that the backend answers on its health endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.endpoints.Health, nil)
	if err != nil {
		return err
	}
	if _, status, err := c.roundTrip(req); err != nil {
		if status > 0 {
			return fmt.Errorf("backend unhealthy: HTTP %d: %w", status, err)
		}
		return fmt.Errorf("backend unreachable: %w", err)
	}
	return nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string { return c.baseURL }

func errorSnippet(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
