package extractapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cheque-extractor/internal/common"
)

const apiKeyHeader = "X-API-KEY"

// send performs req with the API key attached and returns the raw body and status code.
// Non-2xx responses are not treated as errors here; callers decide how to read them.
func (c *Client) send(ctx context.Context, req *http.Request) ([]byte, int, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
		ctx = common.WithRequestID(ctx, reqID)
	}
	start := time.Now()

	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	c.logger.DebugContext(ctx, "extractapi.http.request",
		"method", req.Method,
		"url", req.URL.String(),
		"content_length", req.ContentLength,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "extractapi.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.WarnContext(ctx, "extractapi.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "extractapi.http.read_error", "error", err)
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "extractapi.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, resp.StatusCode, nil
}

func isSuccess(code int) bool {
	return code/100 == 2
}
