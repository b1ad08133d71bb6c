package server

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/repository"
)

// ConnectHistory opens the task journal. An empty DSN disables it and returns nils.
func ConnectHistory(ctx context.Context, cfg common.HistoryConfig, logger *slog.Logger) (repository.TaskRepository, *repository.DB, error) {
	if cfg.DSN == "" {
		logger.Debug("task history disabled")
		return nil, nil, nil
	}
	db, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewTaskRepository(db, logger), db, nil
}

// CloseHistory closes the journal connections gracefully
func CloseHistory(db *repository.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close history store", "error", err)
	}
}
