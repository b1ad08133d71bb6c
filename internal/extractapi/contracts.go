package extractapi

import (
	"context"

	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

// Extractor is the client view of the extraction API that the session depends on.
type Extractor interface {
	// Submit uploads one file and returns the task id assigned by the backend.
	Submit(ctx context.Context, up entity.Upload) (string, error)
	// Status fetches the current state of a task.
	Status(ctx context.Context, taskID string) (entity.StatusResponse, error)
}

// HealthChecker is implemented by clients that can probe the API.
type HealthChecker interface {
	Health(ctx context.Context) error
}
