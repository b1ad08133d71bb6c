package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

const (
	tableTasks     = "task_history"
	colTaskID      = "task_id"
	colFilename    = "filename"
	colMediaType   = "media_type"
	colPerformOCR  = "perform_ocr"
	colStatus      = "status"
	colMessage     = "message"
	colSubmittedAt = "submitted_at"
	colFinishedAt  = "finished_at"
)

var taskColumns = []string{
	colTaskID, colFilename, colMediaType, colPerformOCR,
	colStatus, colMessage, colSubmittedAt, colFinishedAt,
}

// TaskRepository is the history journal of submitted tasks.
type TaskRepository interface {
	Record(ctx context.Context, rec entity.TaskRecord) error
	Finish(ctx context.Context, taskID string, status constants.TaskStatus, message string) error
	ListRecent(ctx context.Context, limit int) ([]entity.TaskRecord, error)
	Get(ctx context.Context, taskID string) (*entity.TaskRecord, error)
}

type taskRepo struct {
	db  *DB
	log *slog.Logger
}

func NewTaskRepository(db *DB, log *slog.Logger) TaskRepository {
	if log == nil {
		log = slog.Default()
	}
	return &taskRepo{db: db, log: log}
}

// Record inserts a task, or refreshes it when the id is already journaled.
func (r *taskRepo) Record(ctx context.Context, rec entity.TaskRecord) error {
	if rec.TaskID == "" {
		return fmt.Errorf("task id: %w", common.ErrInvalidInput)
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = constants.TaskStatusSubmitted
	}

	b := entsql.Dialect(r.db.dialect)
	_, err := r.Get(ctx, rec.TaskID)
	switch {
	case err == nil:
		query, args := b.Update(tableTasks).
			Set(colFilename, rec.Filename).
			Set(colMediaType, rec.MediaType).
			Set(colPerformOCR, rec.PerformOCR).
			Set(colStatus, string(rec.Status)).
			Set(colMessage, rec.Message).
			Set(colSubmittedAt, rec.SubmittedAt.UnixMilli()).
			Set(colFinishedAt, millisOrNil(rec.FinishedAt)).
			Where(entsql.EQ(colTaskID, rec.TaskID)).
			Query()
		if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
			r.log.Error("repository.task.record_failed", "task_id", rec.TaskID, "err", err)
			return fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
		r.log.Debug("repository.task.refreshed", "task_id", rec.TaskID)
		return nil
	case !IsNotFound(err):
		return err
	}

	query, args := b.Insert(tableTasks).
		Columns(taskColumns...).
		Values(
			rec.TaskID, rec.Filename, rec.MediaType, rec.PerformOCR,
			string(rec.Status), rec.Message, rec.SubmittedAt.UnixMilli(), millisOrNil(rec.FinishedAt),
		).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("repository.task.record_failed", "task_id", rec.TaskID, "err", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	r.log.Info("repository.task.recorded", "task_id", rec.TaskID, "filename", rec.Filename)
	return nil
}

// Finish stores a terminal status. Unknown ids are ignored.
func (r *taskRepo) Finish(ctx context.Context, taskID string, status constants.TaskStatus, message string) error {
	query, args := entsql.Dialect(r.db.dialect).Update(tableTasks).
		Set(colStatus, string(status)).
		Set(colMessage, message).
		Set(colFinishedAt, time.Now().UnixMilli()).
		Where(entsql.EQ(colTaskID, taskID)).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("repository.task.finish_failed", "task_id", taskID, "err", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if status == constants.TaskStatusFailure {
		r.log.Warn("repository.task.finished", "task_id", taskID, "status", status, "message", message)
	} else {
		r.log.Info("repository.task.finished", "task_id", taskID, "status", status)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *taskRepo) ListRecent(ctx context.Context, limit int) ([]entity.TaskRecord, error) {
	sel := entsql.Dialect(r.db.dialect).
		Select(taskColumns...).
		From(entsql.Table(tableTasks)).
		OrderBy(entsql.Desc(colSubmittedAt))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()
	return r.query(ctx, query, args)
}

func (r *taskRepo) Get(ctx context.Context, taskID string) (*entity.TaskRecord, error) {
	query, args := entsql.Dialect(r.db.dialect).
		Select(taskColumns...).
		From(entsql.Table(tableTasks)).
		Where(entsql.EQ(colTaskID, taskID)).
		Query()
	recs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID, common.ErrNotFound)
	}
	return &recs[0], nil
}

func (r *taskRepo) query(ctx context.Context, query string, args []any) ([]entity.TaskRecord, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.TaskRecord
	for rows.Next() {
		var (
			rec       entity.TaskRecord
			status    string
			message   sql.NullString
			submitted int64
			finished  sql.NullInt64
		)
		if err := rows.Scan(&rec.TaskID, &rec.Filename, &rec.MediaType, &rec.PerformOCR,
			&status, &message, &submitted, &finished); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", common.ErrDatabase, err)
		}
		rec.Status = constants.TaskStatus(status)
		rec.Message = message.String
		rec.SubmittedAt = time.UnixMilli(submitted)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// IsNotFound reports whether err means the task is not journaled.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
