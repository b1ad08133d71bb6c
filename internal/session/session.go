package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/async"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
	"github.com/joseph-ayodele/cheque-extractor/internal/extractapi"
)

// TaskRecorder journals submitted tasks. Failures are logged and never change the view.
type TaskRecorder interface {
	Record(ctx context.Context, rec entity.TaskRecord) error
	Finish(ctx context.Context, taskID string, status constants.TaskStatus, message string) error
}

var errClosed = common.NewAppError("INVALID_STATE", "session is closed", common.ErrInvalidState)

type Config struct {
	PollInterval time.Duration
	NoticeTTL    time.Duration
}

// Session is the client state machine: Upload → Processing → Results | Error, and back to
// Upload on Reset. All methods are safe for concurrent use.
type Session struct {
	id       string
	api      extractapi.Extractor
	recorder TaskRecorder
	cfg      Config
	logger   *slog.Logger

	mu           sync.Mutex
	view         View
	taskID       string
	filename     string
	result       *entity.ExtractionResult
	failure      *Failure
	notice       string
	noticeTimer  *time.Timer
	noticeGen    uint64
	alert        string
	poller       *async.Poller
	cancelUpload context.CancelFunc
	gen          uint64
	changed      chan struct{}
	closed       bool
	lastActive   time.Time
}

type Option func(*Session)

func WithRecorder(r TaskRecorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

func New(api extractapi.Extractor, logger *slog.Logger, cfg Config, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 5 * time.Second
	}
	s := &Session{
		id:         uuid.New().String(),
		api:        api,
		cfg:        cfg,
		view:       ViewUpload,
		changed:    make(chan struct{}),
		lastActive: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = logger.With("session_id", s.id)
	return s
}

func (s *Session) ID() string { return s.id }

// Submit validates up and, when it is acceptable, uploads it and starts polling. Validation
// problems become a transient notice and are returned as common.ErrValidation; no request is
// sent then. Upload failures are not returned: they move the session to the Error view.
func (s *Session) Submit(ctx context.Context, up entity.Upload) error {
	s.mu.Lock()
	s.touchLocked()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	if s.view != ViewUpload {
		view := s.view
		s.mu.Unlock()
		return common.NewAppError("INVALID_STATE", "submit is only allowed from the upload view, current view is "+view.String(), common.ErrInvalidState)
	}
	if msg := uploadProblem(up); msg != "" {
		s.showNoticeLocked(msg)
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "session.submit.rejected", "filename", up.Filename, "media_type", up.MediaType, "reason", msg)
		return common.NewAppError("VALIDATION_ERROR", msg, common.ErrValidation)
	}

	s.clearNoticeLocked()
	s.filename = up.Filename
	s.setViewLocked(ViewProcessing)
	uploadCtx, cancel := context.WithCancel(ctx)
	s.cancelUpload = cancel
	gen := s.gen
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	taskID, err := s.api.Submit(uploadCtx, up)

	s.mu.Lock()
	if s.gen != gen || s.view != ViewProcessing {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "session.submit.superseded", "filename", up.Filename)
		return nil
	}
	s.cancelUpload = nil
	if err != nil {
		s.failLocked(TitleUploadFailed, errorDetail(err))
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "session.submit.failed", "filename", up.Filename, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil
	}
	s.taskID = taskID
	s.notifyLocked()
	s.mu.Unlock()

	ctx = common.WithTaskID(ctx, taskID)
	s.logger.InfoContext(ctx, "session.submit.ok", "filename", up.Filename, "elapsed_ms", time.Since(start).Milliseconds())
	s.record(ctx, entity.TaskRecord{
		TaskID:      taskID,
		Filename:    up.Filename,
		MediaType:   constants.NormalizeMediaType(up.MediaType),
		PerformOCR:  up.PerformOCR,
		Status:      constants.TaskStatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	})
	s.startPolling(taskID, gen)
	return nil
}

// Resume enters Processing for an already known task id (deep link) and starts polling.
// Any previous flow is torn down first.
func (s *Session) Resume(taskID string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return common.NewAppError("INVALID_INPUT", "task id is required", common.ErrInvalidInput)
	}

	s.mu.Lock()
	s.touchLocked()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	old, cancel := s.teardownLocked()
	gen := s.gen
	s.taskID = taskID
	s.filename = ""
	s.result = nil
	s.failure = nil
	s.setViewLocked(ViewProcessing)
	s.mu.Unlock()

	stopFlow(old, cancel)
	s.logger.Info("session.resume", "task_id", taskID)
	s.startPolling(taskID, gen)
	return nil
}

// Reset returns to the Upload view, clearing the task id, result, failure and notice. Any
// in-flight upload or poll is cancelled and the poller has exited when Reset returns.
func (s *Session) Reset() {
	s.mu.Lock()
	s.touchLocked()
	old, cancel := s.teardownLocked()
	s.taskID = ""
	s.filename = ""
	s.result = nil
	s.failure = nil
	s.alert = ""
	s.setViewLocked(ViewUpload)
	s.mu.Unlock()

	stopFlow(old, cancel)
	s.logger.Debug("session.reset")
}

// Close resets the session and refuses any further polling.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Reset()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:       s.id,
		View:     s.view,
		TaskID:   s.taskID,
		Filename: s.filename,
		Result:   s.result,
		Notice:   s.notice,
		Alert:    s.alert,
		Polling:  s.poller != nil,
	}
	if s.failure != nil {
		f := *s.failure
		snap.Failure = &f
	}
	return snap
}

// Changed returns a channel that is closed on the next state change.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Wait blocks until the session is no longer in the Processing view.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		if s.view != ViewProcessing {
			s.mu.Unlock()
			return s.Snapshot(), nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case <-ch:
		}
	}
}

// Alert posts a one-shot notification, e.g. a download without image data.
func (s *Session) Alert(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = msg
	s.notifyLocked()
}

// TakeAlert returns and clears the pending notification.
func (s *Session) TakeAlert() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.alert
	s.alert = ""
	return msg
}

// LastActive reports when a user action last touched the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch records user activity.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

// startPolling installs the poller for taskID, provided the flow that owns generation
// expected is still the current one. A flow superseded by Reset or Resume does nothing.
func (s *Session) startPolling(taskID string, expected uint64) {
	s.mu.Lock()
	if s.gen != expected || s.view != ViewProcessing || s.closed {
		s.mu.Unlock()
		s.logger.Info("session.poll.superseded", "task_id", taskID)
		return
	}
	old := s.poller
	s.poller = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	p := async.NewPoller(func(ctx context.Context) bool {
		return s.tick(ctx, gen, taskID)
	}, s.logger, async.WithInterval(s.cfg.PollInterval), async.WithName(taskID))

	s.mu.Lock()
	if s.gen != gen || s.view != ViewProcessing || s.closed {
		s.mu.Unlock()
		return
	}
	s.poller = p
	s.notifyLocked()
	s.mu.Unlock()

	p.Start(context.Background())
}

func (s *Session) tick(ctx context.Context, gen uint64, taskID string) bool {
	ctx = common.WithTaskID(common.WithSessionID(ctx, s.id), taskID)
	resp, err := s.api.Status(ctx, taskID)
	if ctx.Err() != nil {
		return true
	}

	s.mu.Lock()
	if s.gen != gen || s.view != ViewProcessing {
		s.mu.Unlock()
		return true
	}
	if err != nil {
		detail := errorDetail(err)
		s.poller = nil
		s.failLocked(TitlePollFailed, detail)
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "session.poll.failed", "error", err)
		s.finish(ctx, constants.TaskStatusFailure, TitlePollFailed+": "+detail)
		return true
	}
	if !resp.Status.IsTerminal() {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "session.poll.tick", "status", resp.Status)
		return false
	}

	switch resp.Status {
	case constants.TaskStatusSuccess:
		result, derr := resp.Result()
		s.poller = nil
		if derr != nil {
			s.failLocked(TitlePollFailed, derr.Error())
			s.mu.Unlock()
			s.logger.ErrorContext(ctx, "session.poll.decode_failed", "error", derr)
			s.finish(ctx, constants.TaskStatusFailure, TitlePollFailed+": "+derr.Error())
			return true
		}
		s.result = result
		s.setViewLocked(ViewResults)
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "session.poll.success", "objects", len(result.DetectedObjects), "has_ocr", result.OCRResult != "")
		s.finish(ctx, constants.TaskStatusSuccess, "")
		return true

	default:
		msg := resp.Message
		if msg == "" {
			msg = DetailTaskFailed
		}
		s.poller = nil
		s.failLocked(TitleTaskFailed, msg)
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "session.poll.task_failed", "message", msg)
		s.finish(ctx, constants.TaskStatusFailure, msg)
		return true
	}
}

// teardownLocked invalidates the current flow and hands back what must be stopped once the
// lock is released.
func (s *Session) teardownLocked() (*async.Poller, context.CancelFunc) {
	s.gen++
	s.clearNoticeLocked()
	old := s.poller
	s.poller = nil
	cancel := s.cancelUpload
	s.cancelUpload = nil
	return old, cancel
}

func stopFlow(p *async.Poller, cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.Stop()
	}
}

func (s *Session) failLocked(title, detail string) {
	s.failure = &Failure{Title: title, Detail: detail}
	s.setViewLocked(ViewError)
}

func (s *Session) setViewLocked(v View) {
	if s.view != v {
		s.logger.Debug("session.view", "from", s.view.String(), "to", v.String())
	}
	s.view = v
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) touchLocked() {
	s.lastActive = time.Now()
}

func (s *Session) showNoticeLocked(msg string) {
	s.clearNoticeLocked()
	s.notice = msg
	s.noticeGen++
	gen := s.noticeGen
	s.noticeTimer = time.AfterFunc(s.cfg.NoticeTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.noticeGen != gen {
			return
		}
		s.notice = ""
		s.noticeTimer = nil
		s.notifyLocked()
	})
	s.notifyLocked()
}

func (s *Session) clearNoticeLocked() {
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
	s.noticeGen++
	if s.notice != "" {
		s.notice = ""
		s.notifyLocked()
	}
}

func (s *Session) record(ctx context.Context, rec entity.TaskRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "session.history.record_failed", "error", err)
	}
}

// finish journals the terminal status of the task carried by ctx. It runs after the poller
// context may already be cancelled, so only the values of ctx are kept.
func (s *Session) finish(ctx context.Context, status constants.TaskStatus, message string) {
	if s.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.recorder.Finish(ctx, common.TaskIDFromContext(ctx), status, message); err != nil {
		s.logger.WarnContext(ctx, "session.history.finish_failed", "error", err)
	}
}

// uploadProblem returns the notice for an unacceptable upload, or "".
func uploadProblem(up entity.Upload) string {
	v := common.NewValidator()
	v.Field("file", up.Filename, common.Required)
	if v.HasErrors() || up.Empty() {
		return NoticeNoFile
	}
	v.Field("media_type", up.MediaType, common.ImageMediaType)
	if v.HasErrors() {
		return NoticeInvalidType
	}
	return ""
}

// errorDetail extracts the text shown under the Error view title.
func errorDetail(err error) string {
	var apiErr *extractapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return err.Error()
}
