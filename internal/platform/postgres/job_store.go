package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shelfscribe/engine/internal/job"
	"github.com/shelfscribe/engine/internal/store"
)

// PostgresJobStore implements the job.Store interface using PostgreSQL.
// Item IDs and per-item results are stored as jsonb so the whole aggregate
// round-trips in a single row.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	return &PostgresJobStore{
		db:     db,
		logger: logger.With("component", "job_store"),
	}
}

var _ job.Store = (*PostgresJobStore)(nil)

const jobColumns = `id, kind, item_ids, status, total, processed, succeeded, failed,
		results, error_message, created_at, started_at, completed_at, updated_at`

// SaveJob persists a newly created job.
func (s *PostgresJobStore) SaveJob(ctx context.Context, j *job.Job) error {
	itemIDs, results, err := encodeJobFields(j)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.db.ExecContext(ctx, query,
		j.ID,
		j.Kind,
		itemIDs,
		j.Status,
		j.Total,
		j.Processed,
		j.Succeeded,
		j.Failed,
		results,
		nullString(j.Error),
		j.CreatedAt,
		nullTime(j.StartedAt),
		nullTime(j.CompletedAt),
		j.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to save job",
			"job_id", j.ID,
			"job_kind", j.Kind,
			"error", err)
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: job %s", store.ErrDuplicate, j.ID)
		}
		return store.NewStoreError("job", "create", "failed to insert job", MapError(err))
	}

	return nil
}

// UpdateJob persists the current state of an existing job.
func (s *PostgresJobStore) UpdateJob(ctx context.Context, j *job.Job) error {
	itemIDs, results, err := encodeJobFields(j)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET kind = $2, item_ids = $3, status = $4, total = $5, processed = $6,
		    succeeded = $7, failed = $8, results = $9, error_message = $10,
		    started_at = $11, completed_at = $12, updated_at = $13
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		j.ID,
		j.Kind,
		itemIDs,
		j.Status,
		j.Total,
		j.Processed,
		j.Succeeded,
		j.Failed,
		results,
		nullString(j.Error),
		nullTime(j.StartedAt),
		nullTime(j.CompletedAt),
		j.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to update job",
			"job_id", j.ID,
			"status", j.Status,
			"error", err)
		return store.NewStoreError("job", "update", "failed to update job", MapError(err))
	}

	if err := CheckRowsAffected(result, "job"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %w: %s", store.ErrUpdateFailed, store.ErrJobNotFound, j.ID)
		}
		return err
	}

	return nil
}

// GetJob retrieves a job by ID. Returns store.ErrJobNotFound when absent.
func (s *PostgresJobStore) GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`

	row := s.db.QueryRowContext(ctx, query, id)
	j, err := scanJob(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, id)
		}
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		return nil, store.NewStoreError("job", "get", "failed to load job", MapError(err))
	}

	return j, nil
}

// ListJobs retrieves jobs matching the filter, newest first.
func (s *PostgresJobStore) ListJobs(ctx context.Context, filter job.Filter) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC
	`
	args := []interface{}{string(filter.Status), filter.Kind}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to list jobs",
			"status", filter.Status,
			"kind", filter.Kind,
			"error", err)
		return nil, store.NewStoreError("job", "list", "failed to query jobs", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// encodeJobFields marshals the jsonb columns of a job row.
func encodeJobFields(j *job.Job) (itemIDs, results []byte, err error) {
	itemIDs, err = json.Marshal(j.ItemIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode job item ids: %w", err)
	}
	if j.Results == nil {
		results = []byte("[]")
	} else {
		results, err = json.Marshal(j.Results)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode job results: %w", err)
		}
	}
	return itemIDs, results, nil
}

// scanJob reads one jobs row through the given scan function, shared between
// QueryRowContext and rows iteration.
func scanJob(scan func(dest ...interface{}) error) (*job.Job, error) {
	var (
		j           job.Job
		itemIDs     []byte
		results     []byte
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := scan(
		&j.ID,
		&j.Kind,
		&itemIDs,
		&j.Status,
		&j.Total,
		&j.Processed,
		&j.Succeeded,
		&j.Failed,
		&results,
		&errMsg,
		&j.CreatedAt,
		&startedAt,
		&completedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemIDs, &j.ItemIDs); err != nil {
		return nil, fmt.Errorf("failed to decode job item ids: %w", err)
	}
	if err := json.Unmarshal(results, &j.Results); err != nil {
		return nil, fmt.Errorf("failed to decode job results: %w", err)
	}
	j.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()

	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
