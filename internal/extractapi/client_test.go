package extractapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, testLogger(), WithHTTPClient(srv.Client()))
}

func TestSubmitSendsMultipartUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/extract" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-KEY"); got != "secret" {
			t.Errorf("X-API-KEY = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("perform_ocr"); got != "true" {
			t.Errorf("perform_ocr = %q, want true", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "cheque.png" || string(data) != "PNGDATA" {
			t.Errorf("file = %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part content type = %q", ct)
		}
		_, _ = io.WriteString(w, `{"task_id":"abc-123"}`)
	})

	id, err := c.Submit(context.Background(), entity.Upload{
		Filename:   "cheque.png",
		MediaType:  "image/png",
		Data:       []byte("PNGDATA"),
		PerformOCR: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "abc-123" {
		t.Errorf("task id = %q", id)
	}
}

func TestSubmitPerformOCRFalse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("perform_ocr"); got != "false" {
			t.Errorf("perform_ocr = %q, want false", got)
		}
		_, _ = io.WriteString(w, `{"task_id":"t1"}`)
	})
	if _, err := c.Submit(context.Background(), entity.Upload{Filename: "a.jpg", MediaType: "image/jpeg", Data: []byte{1}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmitErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		body   string
		detail string
	}{
		{name: "string detail", code: 400, body: `{"detail":"Invalid file type"}`, detail: "Invalid file type"},
		{name: "validation list", code: 422, body: `{"detail": [ {"loc": ["body","file"], "msg": "field required"} ]}`, detail: `[{"loc":["body","file"],"msg":"field required"}]`},
		{name: "no body", code: 500, body: ``, detail: FallbackUploadDetail},
		{name: "null detail", code: 500, body: `{"detail":null}`, detail: FallbackUploadDetail},
		{name: "html", code: 502, body: `<html>bad gateway</html>`, detail: FallbackUploadDetail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Submit(context.Background(), entity.Upload{Filename: "a.png", MediaType: "image/png", Data: []byte{1}})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.code || apiErr.Detail != tt.detail {
				t.Errorf("got %d %q, want %d %q", apiErr.StatusCode, apiErr.Detail, tt.code, tt.detail)
			}
			if !errors.Is(err, common.ErrUpstream) {
				t.Error("APIError should unwrap to ErrUpstream")
			}
		})
	}
}

func TestSubmitRejectsResponseWithoutTaskID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"task_id":""}`)
	})
	if _, err := c.Submit(context.Background(), entity.Upload{Filename: "a.png", MediaType: "image/png", Data: []byte{1}}); err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		wantStatus constants.TaskStatus
		wantErr    bool
		wantDetail string
	}{
		{name: "pending", code: 200, body: `{"status":"pending"}`, wantStatus: constants.TaskStatusPending},
		{name: "unknown status passes", code: 200, body: `{"status":"queued","data":null}`, wantStatus: "queued"},
		{name: "failure with message", code: 200, body: `{"status":"failure","message":"Image too blurry"}`, wantStatus: constants.TaskStatusFailure},
		{name: "success", code: 200, body: `{"status":"success","data":{"ocr_result":"123","detected_objects":{"signature":{"confidence":0.97,"cropped_image":"QQ=="}},"labeled_image":null}}`, wantStatus: constants.TaskStatusSuccess},
		{name: "confidence out of range", code: 200, body: `{"status":"success","data":{"detected_objects":{"signature":{"confidence":1.5}}}}`, wantErr: true},
		{name: "missing status", code: 200, body: `{"data":{}}`, wantErr: true},
		{name: "not json", code: 200, body: `oops`, wantErr: true},
		{name: "not found", code: 404, body: `{"detail":"Task not found"}`, wantErr: true, wantDetail: "Task not found"},
		{name: "server error", code: 500, body: ``, wantErr: true, wantDetail: FallbackStatusDetail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/result/task 1" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("X-API-KEY") != "secret" {
					t.Error("missing api key")
				}
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, tt.body)
			})
			resp, err := c.Status(context.Background(), "task 1")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantDetail != "" {
					var apiErr *APIError
					if !errors.As(err, &apiErr) || apiErr.Detail != tt.wantDetail {
						t.Errorf("error = %v, want detail %q", err, tt.wantDetail)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestStatusTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.Status(context.Background(), "x")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("transport failures are not APIErrors")
	}
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	})
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	healthy.Store(false)
	err := c.Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), FallbackHealthDetail) {
		t.Errorf("Health = %v", err)
	}
}

func TestSchemasCompile(t *testing.T) {
	s, err := compileSchemas()
	if err != nil {
		t.Fatalf("compileSchemas: %v", err)
	}
	if s.status == nil || s.result == nil || s.submit == nil {
		t.Fatal("missing compiled schema")
	}
}
