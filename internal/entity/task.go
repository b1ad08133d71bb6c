package entity

import (
	"time"

	"github.com/joseph-ayodele/cheque-extractor/constants"
)

// Upload is one user-selected file about to be submitted for extraction.
type Upload struct {
	Filename   string
	MediaType  string // as declared by the picker (browser file.type, extension, or sniffed)
	Data       []byte
	PerformOCR bool
}

// Empty reports whether no file was selected.
func (u Upload) Empty() bool {
	return u.Filename == "" && len(u.Data) == 0
}

// TaskRecord represents a submitted task in the history journal.
type TaskRecord struct {
	TaskID      string               `json:"task_id"`
	Filename    string               `json:"filename"`
	MediaType   string               `json:"media_type"`
	PerformOCR  bool                 `json:"perform_ocr"`
	Status      constants.TaskStatus `json:"status"`
	Message     string               `json:"message,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}
