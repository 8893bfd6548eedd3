package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datallboy/gosplice/internal/domain"
)

const queueItemColumns = `id, job_id, source_url, target, options, status, segments, output_path, error, created_at, updated_at`

// queueItemDBO maps to the queue_items table
type queueItemDBO struct {
	ID         string         `db:"id"`
	JobID      sql.NullString `db:"job_id"`
	SourceURL  string         `db:"source_url"`
	Target     string         `db:"target"`
	Options    string         `db:"options"`
	Status     string         `db:"status"`
	Segments   int            `db:"segments"`
	OutputPath sql.NullString `db:"output_path"`
	Error      sql.NullString `db:"error"`
	CreatedAt  int64          `db:"created_at"`
	UpdatedAt  int64          `db:"updated_at"`
}

type scanner interface {
	Scan(dest ...any) error
}

func (q *queueItemDBO) scan(row scanner) error {
	return row.Scan(&q.ID, &q.JobID, &q.SourceURL, &q.Target, &q.Options, &q.Status,
		&q.Segments, &q.OutputPath, &q.Error, &q.CreatedAt, &q.UpdatedAt)
}

func (q *queueItemDBO) args() []any {
	return []any{q.ID, q.JobID, q.SourceURL, q.Target, q.Options, q.Status,
		q.Segments, q.OutputPath, q.Error, q.CreatedAt, q.UpdatedAt}
}

// Mapper: DBO to Domain QueueItem
func (q *queueItemDBO) ToDomain() (*domain.QueueItem, error) {
	item := &domain.QueueItem{
		ID:         q.ID,
		JobID:      q.JobID.String,
		Status:     domain.JobStatus(q.Status),
		Segments:   q.Segments,
		OutputPath: q.OutputPath.String,
		Error:      q.Error.String,
		CreatedAt:  time.UnixMilli(q.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(q.UpdatedAt).UTC(),
	}
	item.SourceURL = q.SourceURL

	if err := json.Unmarshal([]byte(q.Target), &item.Target); err != nil {
		return nil, fmt.Errorf("failed to decode target for %s: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(q.Options), &item.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options for %s: %w", q.ID, err)
	}

	return item, nil
}

// Mapper: Domain QueueItem to DBO
func (q *queueItemDBO) FromDomain(item *domain.QueueItem) error {
	target, err := json.Marshal(item.Target)
	if err != nil {
		return fmt.Errorf("failed to encode target: %w", err)
	}
	options, err := json.Marshal(item.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	q.ID = item.ID
	q.JobID = sql.NullString{String: item.JobID, Valid: item.JobID != ""}
	q.SourceURL = item.SourceURL
	q.Target = string(target)
	q.Options = string(options)
	q.Status = string(item.Status)
	q.Segments = item.Segments
	q.OutputPath = sql.NullString{String: item.OutputPath, Valid: item.OutputPath != ""}
	q.Error = sql.NullString{String: item.Error, Valid: item.Error != ""}
	q.CreatedAt = item.CreatedAt.UnixMilli()
	q.UpdatedAt = item.UpdatedAt.UnixMilli()
	return nil
}
