package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
	"github.com/joseph-ayodele/cheque-extractor/internal/extractapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI scripts the extraction API. Each task id answers its statuses in order and then
// repeats the last one.
type fakeAPI struct {
	mu        sync.Mutex
	taskID    string
	submitErr error
	blockCtx  bool
	submits   int
	statuses  map[string][]entity.StatusResponse
	statusErr error
	polls     map[string]int
	onStatus  func(taskID string) // called before each status answer
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{taskID: "task-1", statuses: map[string][]entity.StatusResponse{}, polls: map[string]int{}}
}

func (f *fakeAPI) Submit(ctx context.Context, _ entity.Upload) (string, error) {
	f.mu.Lock()
	f.submits++
	block, id, err := f.blockCtx, f.taskID, f.submitErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return id, err
}

func (f *fakeAPI) Status(_ context.Context, taskID string) (entity.StatusResponse, error) {
	if f.onStatus != nil {
		f.onStatus(taskID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.polls[taskID]
	f.polls[taskID] = n + 1
	if f.statusErr != nil {
		return entity.StatusResponse{}, f.statusErr
	}
	script := f.statuses[taskID]
	if len(script) == 0 {
		return entity.StatusResponse{Status: constants.TaskStatusPending}, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (f *fakeAPI) pollCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[taskID]
}

func (f *fakeAPI) setTaskID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskID = id
}

func (f *fakeAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeRecorder struct {
	mu       sync.Mutex
	records  []entity.TaskRecord
	finished map[string]constants.TaskStatus
	messages map[string]string
}

func (r *fakeRecorder) Record(_ context.Context, rec entity.TaskRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) Finish(_ context.Context, taskID string, status constants.TaskStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]constants.TaskStatus{}
		r.messages = map[string]string{}
	}
	r.finished[taskID] = status
	r.messages[taskID] = message
	return nil
}

func (r *fakeRecorder) finishedAs(taskID string) (constants.TaskStatus, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished[taskID], r.messages[taskID]
}

// gatedRecorder holds Record for one task until release is closed.
type gatedRecorder struct {
	*fakeRecorder
	taskID  string
	entered chan struct{}
	release chan struct{}
}

func newGatedRecorder(taskID string) *gatedRecorder {
	return &gatedRecorder{
		fakeRecorder: &fakeRecorder{},
		taskID:       taskID,
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
}

func (r *gatedRecorder) Record(ctx context.Context, rec entity.TaskRecord) error {
	if rec.TaskID == r.taskID {
		r.entered <- struct{}{}
		<-r.release
	}
	return r.fakeRecorder.Record(ctx, rec)
}

func (r *gatedRecorder) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-r.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("Record was never called")
	}
}

func successResponse(t *testing.T, result entity.ExtractionResult) entity.StatusResponse {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	return entity.StatusResponse{Status: constants.TaskStatusSuccess, Data: data}
}

func newTestSession(api *fakeAPI, opts ...Option) *Session {
	return New(api, testLogger(), Config{PollInterval: 5 * time.Millisecond, NoticeTTL: 30 * time.Millisecond}, opts...)
}

func validUpload() entity.Upload {
	return entity.Upload{Filename: "cheque.png", MediaType: "image/png", Data: []byte("png")}
}

func waitDone(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("session stuck in %s: %v", snap.View, err)
	}
	return snap
}

func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		ch := s.Changed()
		if snap := s.Snapshot(); cond(snap) {
			return snap
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatalf("condition not reached, state %+v", s.Snapshot())
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitRejectsInvalidUploads(t *testing.T) {
	tests := []struct {
		name   string
		upload entity.Upload
		notice string
	}{
		{name: "no file", upload: entity.Upload{}, notice: NoticeNoFile},
		{name: "pdf", upload: entity.Upload{Filename: "cheque.pdf", MediaType: "application/pdf", Data: []byte("%PDF")}, notice: NoticeInvalidType},
		{name: "missing media type", upload: entity.Upload{Filename: "cheque", Data: []byte("x")}, notice: NoticeInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			s := newTestSession(api)
			defer s.Close()

			err := s.Submit(context.Background(), tt.upload)
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("Submit error = %v, want ErrValidation", err)
			}
			snap := s.Snapshot()
			if snap.View != ViewUpload || snap.Notice != tt.notice {
				t.Fatalf("view %s notice %q", snap.View, snap.Notice)
			}
			if api.submitCount() != 0 {
				t.Error("no request may be sent for an invalid upload")
			}

			// the notice dismisses itself
			waitFor(t, s, func(s Snapshot) bool { return s.Notice == "" })
		})
	}
}

func TestSubmitAcceptsMediaTypeWithParameters(t *testing.T) {
	api := newFakeAPI()
	api.statuses["task-1"] = []entity.StatusResponse{successResponse(t, entity.ExtractionResult{})}
	s := newTestSession(api)
	defer s.Close()

	up := validUpload()
	up.MediaType = "IMAGE/JPEG; charset=binary"
	if err := s.Submit(context.Background(), up); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap := waitDone(t, s); snap.View != ViewResults {
		t.Fatalf("view = %s", snap.View)
	}
}

func TestSubmitPollsUntilSuccess(t *testing.T) {
	api := newFakeAPI()
	api.statuses["task-1"] = []entity.StatusResponse{
		{Status: constants.TaskStatusPending},
		{Status: constants.TaskStatusProgress},
		successResponse(t, entity.ExtractionResult{
			OCRResult: "123456789",
			DetectedObjects: entity.DetectedObjects{
				{ClassName: "signature", Object: entity.DetectedObject{Confidence: 0.97}},
			},
		}),
	}
	rec := &fakeRecorder{}
	s := newTestSession(api, WithRecorder(rec))
	defer s.Close()

	if err := s.Submit(context.Background(), validUpload()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitDone(t, s)
	if snap.View != ViewResults {
		t.Fatalf("view = %s, failure %+v", snap.View, snap.Failure)
	}
	if snap.TaskID != "task-1" || snap.Filename != "cheque.png" {
		t.Errorf("task %q file %q", snap.TaskID, snap.Filename)
	}
	if snap.Result == nil || snap.Result.OCRResult != "123456789" || len(snap.Result.DetectedObjects) != 1 {
		t.Fatalf("result = %+v", snap.Result)
	}
	if snap.Polling {
		t.Error("poller should be gone after success")
	}
	if got := api.pollCount("task-1"); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}

	eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.finished["task-1"] == constants.TaskStatusSuccess
	})
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 1 || rec.records[0].Status != constants.TaskStatusSubmitted || rec.records[0].MediaType != "image/png" {
		t.Errorf("records = %+v", rec.records)
	}
}

func TestTaskFailure(t *testing.T) {
	tests := []struct {
		name    string
		message string
		detail  string
	}{
		{name: "with message", message: "Image too blurry", detail: "Image too blurry"},
		{name: "without message", detail: DetailTaskFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.statuses["task-1"] = []entity.StatusResponse{{Status: constants.TaskStatusFailure, Message: tt.message}}
			s := newTestSession(api)
			defer s.Close()

			if err := s.Submit(context.Background(), validUpload()); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			snap := waitDone(t, s)
			if snap.View != ViewError || snap.Failure == nil {
				t.Fatalf("view = %s", snap.View)
			}
			if snap.Failure.Title != TitleTaskFailed || snap.Failure.Detail != tt.detail {
				t.Errorf("failure = %+v", snap.Failure)
			}
			if snap.Result != nil {
				t.Error("failure must not carry a result")
			}
		})
	}
}

func TestUploadFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		detail string
	}{
		{name: "api detail", err: &extractapi.APIError{StatusCode: 400, Detail: "Invalid file"}, detail: "Invalid file"},
		{name: "network", err: errors.New("connection refused"), detail: "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.submitErr = tt.err
			s := newTestSession(api)
			defer s.Close()

			if err := s.Submit(context.Background(), validUpload()); err != nil {
				t.Fatalf("upload failures are shown, not returned: %v", err)
			}
			snap := s.Snapshot()
			if snap.View != ViewError || snap.Failure.Title != TitleUploadFailed || snap.Failure.Detail != tt.detail {
				t.Fatalf("snapshot = %+v failure %+v", snap, snap.Failure)
			}
			if api.submitCount() != 1 {
				t.Errorf("submits = %d, the upload is never retried", api.submitCount())
			}
			if api.pollCount("task-1") != 0 {
				t.Error("no polling after a failed upload")
			}
		})
	}
}

func TestPollFailure(t *testing.T) {
	api := newFakeAPI()
	api.statusErr = &extractapi.APIError{StatusCode: 404, Detail: "Task not found"}
	s := newTestSession(api)
	defer s.Close()

	if err := s.Resume("gone"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap := waitDone(t, s)
	if snap.View != ViewError || snap.Failure.Title != TitlePollFailed || snap.Failure.Detail != "Task not found" {
		t.Fatalf("failure = %+v", snap.Failure)
	}
	polls := api.pollCount("gone")
	time.Sleep(30 * time.Millisecond)
	if api.pollCount("gone") != polls {
		t.Error("polling continued after a fatal error")
	}
}

func TestPollFailureIsJournaled(t *testing.T) {
	api := newFakeAPI()
	api.statusErr = errors.New("connection refused")
	rec := &fakeRecorder{}
	s := newTestSession(api, WithRecorder(rec))
	defer s.Close()

	if err := s.Submit(context.Background(), validUpload()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap := waitDone(t, s); snap.View != ViewError {
		t.Fatalf("view = %s", snap.View)
	}
	eventually(t, func() bool {
		status, _ := rec.finishedAs("task-1")
		return status == constants.TaskStatusFailure
	})
	if _, msg := rec.finishedAs("task-1"); msg != TitlePollFailed+": connection refused" {
		t.Errorf("journal message = %q", msg)
	}
}

func TestUnrecognizedStatusKeepsPolling(t *testing.T) {
	api := newFakeAPI()
	queued := entity.StatusResponse{Status: constants.TaskStatus("queued")}
	api.statuses["task-1"] = []entity.StatusResponse{queued, queued, queued, successResponse(t, entity.ExtractionResult{OCRResult: "42"})}

	var s *Session
	views := make(chan View, 16)
	api.onStatus = func(string) { views <- s.Snapshot().View }
	s = newTestSession(api)
	defer s.Close()

	if err := s.Submit(context.Background(), validUpload()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitDone(t, s)
	if snap.View != ViewResults || snap.Result.OCRResult != "42" {
		t.Fatalf("final state %+v", snap)
	}
	if n := api.pollCount("task-1"); n != 4 {
		t.Fatalf("polls = %d, want 4", n)
	}
	close(views)
	seen := 0
	for v := range views {
		seen++
		if v != ViewProcessing {
			t.Errorf("poll %d saw view %s, want processing", seen, v)
		}
	}
	if seen != 4 {
		t.Errorf("observed %d polls, want 4", seen)
	}
}

func TestResumeDuringSubmitWinsOverStaleTask(t *testing.T) {
	api := newFakeAPI()
	rec := newGatedRecorder("task-1")
	s := newTestSession(api, WithRecorder(rec))
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), validUpload()) }()
	rec.waitEntered(t)

	if err := s.Resume("resumed"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	close(rec.release)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}

	eventually(t, func() bool { return api.pollCount("resumed") >= 3 })
	if n := api.pollCount("task-1"); n != 0 {
		t.Errorf("superseded task polled %d times", n)
	}
	snap := s.Snapshot()
	if snap.TaskID != "resumed" || !snap.Polling || snap.View != ViewProcessing {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestResubmitDuringSubmitWinsOverStaleTask(t *testing.T) {
	api := newFakeAPI()
	rec := newGatedRecorder("task-1")
	s := newTestSession(api, WithRecorder(rec))
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), validUpload()) }()
	rec.waitEntered(t)

	s.Reset()
	api.setTaskID("task-2")
	if err := s.Submit(context.Background(), validUpload()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	close(rec.release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	eventually(t, func() bool { return api.pollCount("task-2") >= 3 })
	if n := api.pollCount("task-1"); n != 0 {
		t.Errorf("superseded task polled %d times", n)
	}
	if snap := s.Snapshot(); snap.TaskID != "task-2" || !snap.Polling {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestResetStopsPolling(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(api)
	defer s.Close()

	if err := s.Submit(context.Background(), validUpload()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	eventually(t, func() bool { return api.pollCount("task-1") >= 2 })

	s.Reset()
	polls := api.pollCount("task-1")
	snap := s.Snapshot()
	if snap.View != ViewUpload || snap.TaskID != "" || snap.Filename != "" || snap.Result != nil || snap.Failure != nil || snap.Polling {
		t.Fatalf("reset left state behind: %+v", snap)
	}
	time.Sleep(30 * time.Millisecond)
	if got := api.pollCount("task-1"); got != polls {
		t.Errorf("polled %d more times after Reset", got-polls)
	}

	// a new submission is possible again
	api.statuses["task-1"] = []entity.StatusResponse{successResponse(t, entity.ExtractionResult{})}
	if err := s.Submit(context.Background(), validUpload()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if snap := waitDone(t, s); snap.View != ViewResults {
		t.Fatalf("view = %s", snap.View)
	}
}

func TestResetCancelsInFlightUpload(t *testing.T) {
	api := newFakeAPI()
	api.blockCtx = true
	s := newTestSession(api)
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), validUpload()) }()
	waitFor(t, s, func(snap Snapshot) bool { return snap.View == ViewProcessing })

	s.Reset()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("upload was not cancelled")
	}
	if snap := s.Snapshot(); snap.View != ViewUpload || snap.Failure != nil {
		t.Fatalf("superseded upload changed the view: %+v", snap)
	}
}

func TestSubmitOnlyFromUploadView(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(api)
	defer s.Close()

	if err := s.Resume("task-9"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	err := s.Submit(context.Background(), validUpload())
	if !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("Submit from processing = %v", err)
	}
}

func TestResumeSupersedesPreviousPoller(t *testing.T) {
	api := newFakeAPI()
	api.statuses["b"] = []entity.StatusResponse{
		{Status: constants.TaskStatusPending},
		successResponse(t, entity.ExtractionResult{OCRResult: "42"}),
	}
	s := newTestSession(api)
	defer s.Close()

	if err := s.Resume("a"); err != nil {
		t.Fatalf("Resume a: %v", err)
	}
	eventually(t, func() bool { return api.pollCount("a") > 0 })
	if err := s.Resume("b"); err != nil {
		t.Fatalf("Resume b: %v", err)
	}
	aPolls := api.pollCount("a")

	snap := waitDone(t, s)
	if snap.View != ViewResults || snap.TaskID != "b" || snap.Result.OCRResult != "42" {
		t.Fatalf("snapshot = %+v", snap)
	}
	time.Sleep(30 * time.Millisecond)
	if got := api.pollCount("a"); got != aPolls {
		t.Errorf("old poller kept polling: %d -> %d", aPolls, got)
	}
}

func TestResumeRequiresTaskID(t *testing.T) {
	s := newTestSession(newFakeAPI())
	defer s.Close()
	if err := s.Resume("  "); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("Resume(blank) = %v", err)
	}
	if s.Snapshot().View != ViewUpload {
		t.Error("blank resume must not leave the upload view")
	}
}

func TestClosedSessionRefusesWork(t *testing.T) {
	s := newTestSession(newFakeAPI())
	s.Close()
	if err := s.Submit(context.Background(), validUpload()); !errors.Is(err, common.ErrInvalidState) {
		t.Errorf("Submit after Close = %v", err)
	}
	if err := s.Resume("x"); !errors.Is(err, common.ErrInvalidState) {
		t.Errorf("Resume after Close = %v", err)
	}
}

func TestAlertIsOneShot(t *testing.T) {
	s := newTestSession(newFakeAPI())
	defer s.Close()
	s.Alert("No results available for download.")
	if got := s.TakeAlert(); got != "No results available for download." {
		t.Errorf("TakeAlert = %q", got)
	}
	if got := s.TakeAlert(); got != "" {
		t.Errorf("second TakeAlert = %q", got)
	}
}

func TestSupportMessage(t *testing.T) {
	if got := SupportMessage("help@example.com", ""); got != "Please contact support at help@example.com with your task ID: N/A" {
		t.Errorf("got %q", got)
	}
	if got := SupportMessage("help@example.com", "t-1"); got != "Please contact support at help@example.com with your task ID: t-1" {
		t.Errorf("got %q", got)
	}
}
