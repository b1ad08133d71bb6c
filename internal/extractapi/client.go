package extractapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

// Fallback error details used when the API gives none.
const (
	FallbackUploadDetail = "Failed to upload file"
	FallbackStatusDetail = "Failed to fetch task status"
	FallbackHealthDetail = "Extraction API is not healthy"
)

// Config for the extraction API client.
type Config struct {
	BaseURL string        // e.g. http://localhost:8000
	APIKey  string        // sent as X-API-KEY on every request
	Timeout time.Duration // 0 disables the per-request timeout
}

// Client talks to the extraction API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

var loadSchemas = sync.OnceValues(compileSchemas)

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx answer from the extraction API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string { return e.Detail }

func (e *APIError) Unwrap() error { return common.ErrUpstream }

// newAPIError reads the {detail} member of an error body. FastAPI validation errors carry a
// list there; it is kept as compact JSON.
func newAPIError(code int, raw []byte, fallback string) *APIError {
	out := &APIError{StatusCode: code, Detail: fallback}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return out
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		if strings.TrimSpace(s) != "" {
			out.Detail = s
		}
		return out
	}
	if string(body.Detail) == "null" {
		return out
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body.Detail); err == nil {
		out.Detail = compact.String()
	}
	return out
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Submit sends POST /extract with the file and the perform_ocr flag.
func (c *Client) Submit(ctx context.Context, up entity.Upload) (string, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	mediaType := up.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(up.Filename)))
	h.Set("Content-Type", mediaType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("perform_ocr", strconv.FormatBool(up.PerformOCR)); err != nil {
		return "", fmt.Errorf("write perform_ocr: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/extract", body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	raw, code, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	if !isSuccess(code) {
		apiErr := newAPIError(code, raw, FallbackUploadDetail)
		c.logger.WarnContext(ctx, "extractapi.submit.rejected", "status", code, "detail", apiErr.Detail, "filename", up.Filename)
		return "", apiErr
	}
	if err := validateJSON(schemas.submit, raw); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	c.logger.InfoContext(ctx, "extractapi.submit.ok", "task_id", out.TaskID, "filename", up.Filename, "bytes", len(up.Data), "perform_ocr", up.PerformOCR)
	return out.TaskID, nil
}

// Status sends GET /result/{task_id}. A success body is additionally checked against the
// result schema so that a malformed payload surfaces as a polling failure.
func (c *Client) Status(ctx context.Context, taskID string) (entity.StatusResponse, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return entity.StatusResponse{}, err
	}

	endpoint := c.cfg.BaseURL + "/result/" + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return entity.StatusResponse{}, fmt.Errorf("create request: %w", err)
	}

	raw, code, err := c.send(ctx, req)
	if err != nil {
		return entity.StatusResponse{}, err
	}
	if !isSuccess(code) {
		return entity.StatusResponse{}, newAPIError(code, raw, FallbackStatusDetail)
	}
	if err := validateJSON(schemas.status, raw); err != nil {
		return entity.StatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}

	var out entity.StatusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return entity.StatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	if out.Status == constants.TaskStatusSuccess && len(out.Data) > 0 {
		if err := validateJSON(schemas.result, out.Data); err != nil {
			return entity.StatusResponse{}, fmt.Errorf("decode extraction result: %w", err)
		}
	}
	return out, nil
}

// Health sends GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	raw, code, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if !isSuccess(code) {
		return newAPIError(code, raw, FallbackHealthDetail)
	}
	return nil
}
