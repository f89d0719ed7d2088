// client.go - HTTP client for the analysis backend
package api

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
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/genstats/client/internal/models"
	"github.com/google/uuid"
)

// Canonical endpoint paths. AliasInsightPath is the name an older front end
// used for the same insight operation.
const (
	UploadPath       = "/upload"
	SummaryPath      = "/summary/"
	InsightPath      = "/generate_insights"
	AliasInsightPath = "/generate_ai"
	HealthPath       = "/health"
	RealtimePath     = "/ws"
)

// HeaderRequestID carries a per-request id for log correlation.
const HeaderRequestID = "X-Request-ID"

// maxResponseBytes bounds how much of a response body is read.
var maxResponseBytes int64 = 32 << 20

// ErrResponseTooLarge is returned when a response body exceeds the read limit.
var ErrResponseTooLarge = errors.New("response too large")

// Options configures a Client.
type Options struct {
	BaseURL     string
	InsightPath string        // defaults to InsightPath
	Timeout     time.Duration // zero leaves the transport default
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to the upload, summary and insight services over HTTP.
type Client struct {
	base        *url.URL
	insightPath string
	http        *http.Client
	log         *slog.Logger
}

var _ Backend = (*Client)(nil)
var _ HealthChecker = (*Client)(nil)

// NewClient validates the options and returns a ready client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	insight := opts.InsightPath
	if insight == "" {
		insight = InsightPath
	}
	if !strings.HasPrefix(insight, "/") {
		insight = "/" + insight
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:        base,
		insightPath: insight,
		http:        httpClient,
		log:         logger.With("component", "api"),
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Upload streams body to POST /upload as the multipart field "file".
func (c *Client) Upload(ctx context.Context, name, contentType string, body io.Reader) (*models.UploadResult, error) {
	if contentType == "" {
		contentType = models.DefaultContentType
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(UploadPath), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}

	fileID, err := decodeFileID(envelope["file_id"])
	if err != nil {
		return nil, err
	}
	delete(envelope, "file_id")

	result := &models.UploadResult{FileID: models.DatasetHandle(fileID)}
	if len(envelope) > 0 {
		preview, err := json.Marshal(envelope)
		if err == nil {
			result.Preview = preview
		}
	}
	return result, nil
}

// decodeFileID accepts a JSON string or number as the dataset handle. Numbers
// keep their literal text.
func decodeFileID(raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", errors.New("upload response has no file_id")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decoding file_id: %w", err)
	}
	var id string
	switch x := v.(type) {
	case string:
		id = x
	case json.Number:
		id = x.String()
	case nil:
		return "", errors.New("upload response has no file_id")
	default:
		return "", fmt.Errorf("file_id has unsupported type %T", v)
	}
	if id == "" {
		return "", errors.New("upload response has no file_id")
	}
	return id, nil
}

// Summary fetches GET /summary/{handle}.
func (c *Client) Summary(ctx context.Context, handle models.DatasetHandle) (models.Summary, error) {
	if handle.IsZero() {
		return nil, errors.New("dataset handle is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint(SummaryPath+url.PathEscape(handle.String())), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("summary response is not valid JSON: %s", truncate(string(raw), 200))
	}
	return models.Summary(raw), nil
}

type insightRequest struct {
	Query string `json:"query"`
}

type insightResponse struct {
	Response *string `json:"response"`
}

// GenerateInsights posts the query to the configured insight path.
func (c *Client) GenerateInsights(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(insightRequest{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshaling query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.insightPath), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return "", err
	}

	var out insightResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decoding insight response: %w", err)
	}
	if out.Response == nil {
		return "", errors.New("insight response has no response field")
	}
	return *out.Response, nil
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(HealthPath), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var status HealthStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &status, nil
}

// do sends req and returns the body of a 2xx response. Any other status is
// returned as *APIError; transport failures are wrapped as-is.
func (c *Client) do(req *http.Request) ([]byte, error) {
	reqID := uuid.NewString()
	req.Header.Set(HeaderRequestID, reqID)

	log := c.log.With("request_id", reqID, "method", req.Method, "path", req.URL.Path)
	start := time.Now()

	res, err := c.http.Do(req)
	if err != nil {
		log.Debug("request failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func(body io.ReadCloser) {
		if closeErr := body.Close(); closeErr != nil {
			log.Warn("failed to close response body", "error", closeErr)
		}
	}(res.Body)

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(raw)) > maxResponseBytes {
		log.Warn("response too large", "status", res.StatusCode, "limit", maxResponseBytes)
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}

	log.Debug("response received",
		"status", res.StatusCode,
		"bytes", len(raw),
		"duration", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, decodeError(res.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
