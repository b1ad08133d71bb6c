package constants

// TaskStatus is the status string reported by GET /result/{task_id}.
type TaskStatus string

// Values the extraction API is known to return. Anything else is treated as non-terminal.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusProgress  TaskStatus = "progress"
	TaskStatusSubmitted TaskStatus = "submitted" // history journal only, set before the first poll
	TaskStatusSuccess   TaskStatus = "success"   // terminal
	TaskStatusFailure   TaskStatus = "failure"   // terminal
)

// IsTerminal reports whether polling must stop on this status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure
}
