package session

import "github.com/joseph-ayodele/cheque-extractor/internal/entity"

// View is the single visible section of the client.
type View int

const (
	ViewUpload View = iota
	ViewProcessing
	ViewResults
	ViewError
)

func (v View) String() string {
	switch v {
	case ViewUpload:
		return "upload"
	case ViewProcessing:
		return "processing"
	case ViewResults:
		return "results"
	case ViewError:
		return "error"
	default:
		return "unknown"
	}
}

// User-facing texts.
const (
	TitleUploadFailed = "Failed to upload file"
	TitlePollFailed   = "Failed to check task status"
	TitleTaskFailed   = "Processing failed"
	DetailTaskFailed  = "An error occurred during processing"

	NoticeNoFile      = "Please select a file to upload."
	NoticeInvalidType = "Invalid file type. Please upload an image file (PNG, JPG, JPEG, TIFF, BMP, GIF)."
)

// Failure is the content of the Error view.
type Failure struct {
	Title  string
	Detail string // optional
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID       string
	View     View
	TaskID   string
	Filename string
	Result   *entity.ExtractionResult
	Failure  *Failure
	Notice   string // transient inline validation error on the upload form
	Alert    string // one-shot user notification, see Session.TakeAlert
	Polling  bool
}

// SupportMessage is the contact-support text for a task, "N/A" when none is known.
func SupportMessage(email, taskID string) string {
	if taskID == "" {
		taskID = "N/A"
	}
	return "Please contact support at " + email + " with your task ID: " + taskID
}
