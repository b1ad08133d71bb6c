package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
	"github.com/joseph-ayodele/cheque-extractor/internal/export"
	"github.com/joseph-ayodele/cheque-extractor/internal/render"
	"github.com/joseph-ayodele/cheque-extractor/internal/repository"
	"github.com/joseph-ayodele/cheque-extractor/internal/session"
	"github.com/joseph-ayodele/cheque-extractor/internal/utils"
)

const (
	jpegType = "image/jpeg"
	xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Options tune the web handlers.
type Options struct {
	PollInterval   time.Duration
	NoticeTTL      time.Duration
	Stagger        time.Duration
	SupportEmail   string
	HistoryLimit   int
	MaxUploadBytes int64
}

// Handler serves the server-rendered client.
type Handler struct {
	registry *Registry
	renderer *render.Renderer
	history  repository.TaskRepository // nil when the journal is disabled
	health   *HealthReporter           // nil when not monitored
	opts     Options
	logger   *slog.Logger
}

func NewHandler(reg *Registry, renderer *render.Renderer, history repository.TaskRepository, health *HealthReporter, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Handler{registry: reg, renderer: renderer, history: history, health: health, opts: opts, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("POST /extract", h.extract)
	mux.HandleFunc("POST /reset", h.reset)
	mux.HandleFunc("GET /download/labeled", h.downloadLabeled)
	mux.HandleFunc("GET /download/objects/{class}", h.downloadCropped)
	mux.HandleFunc("GET /download/all", h.downloadAll)
	mux.HandleFunc("GET /download/report", h.downloadReport)
	mux.HandleFunc("GET /support", h.support)
	mux.HandleFunc("GET /healthz", h.healthz)
	return withRequestLogging(mux, h.logger)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)

	if taskID := r.URL.Query().Get("task_id"); taskID != "" {
		if err := sess.Resume(taskID); err != nil {
			h.logger.WarnContext(r.Context(), "server.resume.failed", "task_id", taskID, "error", err)
		}
		redirectHome(w, r)
		return
	}

	snap := sess.Snapshot()
	pd := render.NewPageData(snap, h.opts.PollInterval, h.opts.NoticeTTL)
	pd.Alert = sess.TakeAlert()
	if snap.View == session.ViewUpload && h.history != nil {
		recs, err := h.history.ListRecent(r.Context(), h.opts.HistoryLimit)
		if err != nil {
			h.logger.WarnContext(r.Context(), "server.history.list_failed", "error", err)
		}
		pd.History = recs
	}

	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, pd); err != nil {
		h.logger.ErrorContext(r.Context(), "server.render.failed", "view", pd.View, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// extract starts the upload in the background and redirects once the session has either
// shown a validation notice or entered Processing.
func (h *Handler) extract(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	up, err := readUpload(r, h.opts.MaxUploadBytes)
	if err != nil {
		h.logger.WarnContext(r.Context(), "server.upload.unreadable", "error", err)
		http.Error(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := context.WithoutCancel(common.WithSessionID(r.Context(), sess.ID()))
	changed := sess.Changed()
	errc := make(chan error, 1)
	go func() { errc <- sess.Submit(ctx, up) }()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, common.ErrValidation) {
			h.logger.WarnContext(ctx, "server.submit.rejected", "error", err)
		}
	case <-changed:
	case <-r.Context().Done():
	}
	redirectHome(w, r)
}

func readUpload(r *http.Request, maxMemory int64) (entity.Upload, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return entity.Upload{}, common.WrapError(err, "parse form")
	}
	up := entity.Upload{PerformOCR: utils.FormBool(r.FormValue("perform_ocr"))}

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return up, nil
	}
	if err != nil {
		return entity.Upload{}, common.WrapError(err, "open file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return entity.Upload{}, common.WrapError(err, "read file")
	}
	up.Filename = hdr.Filename
	up.MediaType = hdr.Header.Get("Content-Type")
	up.Data = data
	return up, nil
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.registry.Lookup(w, r).Reset()
	redirectHome(w, r)
}

func (h *Handler) downloadLabeled(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)
	img, err := export.LabeledImage(sess.Snapshot().Result)
	if err != nil {
		h.downloadFailed(w, r, sess, err, export.MsgNoLabeled)
		return
	}
	h.sendImage(w, img)
}

func (h *Handler) downloadCropped(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)
	img, err := export.CroppedImage(sess.Snapshot().Result, r.PathValue("class"))
	if err != nil {
		h.downloadFailed(w, r, sess, err, export.MsgNoImageData)
		return
	}
	h.sendImage(w, img)
}

// downloadAll sends a single image directly; several images get a page that triggers each
// download at its planned offset.
func (h *Handler) downloadAll(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)
	images, err := export.Collect(sess.Snapshot().Result)
	if err != nil {
		h.downloadFailed(w, r, sess, err, export.MsgNoImages)
		return
	}

	plan := export.Plan(images, h.opts.Stagger)
	if len(plan) == 1 {
		h.sendImage(w, plan[0].Image)
		return
	}

	data := render.DownloadAllData{Items: make([]render.DownloadLink, 0, len(plan))}
	for _, s := range plan {
		link := "/download/labeled"
		if !s.Labeled() {
			link = render.CroppedDownloadURL(s.ClassName)
		}
		data.Items = append(data.Items, render.DownloadLink{
			Name:        s.Name,
			URL:         link,
			DelayMillis: s.Delay.Milliseconds(),
		})
	}

	var buf bytes.Buffer
	if err := h.renderer.DownloadAll(&buf, data); err != nil {
		h.logger.ErrorContext(r.Context(), "server.render.failed", "view", "download_all", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) downloadReport(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)
	snap := sess.Snapshot()
	data, err := export.Report(snap.TaskID, snap.Result)
	if err != nil {
		h.downloadFailed(w, r, sess, err, err.Error())
		return
	}
	if err := utils.WriteAttachment(w, constants.ReportName, xlsxType, data); err != nil {
		h.logger.WarnContext(r.Context(), "server.download.write_failed", "error", err)
	}
}

func (h *Handler) support(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Lookup(w, r)
	sess.Alert(session.SupportMessage(h.opts.SupportEmail, sess.Snapshot().TaskID))
	redirectHome(w, r)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "sessions": h.registry.Len()}
	code := http.StatusOK
	if h.health != nil {
		checked, err := h.health.Last()
		switch {
		case checked.IsZero():
			body["upstream"] = "unknown"
		case err != nil:
			body["status"] = "degraded"
			body["upstream"] = err.Error()
			code = http.StatusServiceUnavailable
		default:
			body["upstream"] = "ok"
		}
	}
	_ = utils.WriteJSON(w, code, body)
}

// downloadFailed turns a missing image into a one-shot alert on the current view.
func (h *Handler) downloadFailed(w http.ResponseWriter, r *http.Request, sess *session.Session, err error, noData string) {
	switch {
	case errors.Is(err, export.ErrNoResult):
		sess.Alert(export.MsgNoResult)
	case errors.Is(err, export.ErrNoImages):
		sess.Alert(export.MsgNoImages)
	case errors.Is(err, export.ErrNoImageData):
		sess.Alert(noData)
	case errors.Is(err, common.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	default:
		h.logger.ErrorContext(r.Context(), "server.download.failed", "error", err)
		sess.Alert(err.Error())
	}
	redirectHome(w, r)
}

func (h *Handler) sendImage(w http.ResponseWriter, img export.Image) {
	if err := utils.WriteAttachment(w, img.Name, jpegType, img.Data); err != nil {
		h.logger.Warn("server.download.write_failed", "name", img.Name, "error", err)
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
