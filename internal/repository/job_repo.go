package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"classdeck-backend/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobStatusPending
	if len(j.ConfigJSON) == 0 {
		j.ConfigJSON = json.RawMessage("{}")
	}

	query := `INSERT INTO device_jobs (id, teacher_id, type, config_json, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.TeacherID, j.Type, []byte(j.ConfigJSON), j.Status,
	).Scan(&j.CreatedAt)
}

// GetByID only returns jobs owned by teacherID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID, teacherID string) (*models.Job, error) {
	j := &models.Job{}
	var config, result []byte
	query := `SELECT id, teacher_id, type, config_json, status, result_json, error_message, created_at, completed_at
		FROM device_jobs WHERE id = $1 AND teacher_id = $2`

	err := r.pool.QueryRow(ctx, query, id, teacherID).Scan(
		&j.ID, &j.TeacherID, &j.Type, &config, &j.Status,
		&result, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	j.ConfigJSON = config
	if len(result) > 0 {
		j.ResultJSON = result
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := "UPDATE device_jobs SET status = $1 WHERE id = $2"
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		now := time.Now()
		query = "UPDATE device_jobs SET status = $1, completed_at = $2 WHERE id = $3"
		_, err := r.pool.Exec(ctx, query, status, now, id)
		return err
	}
	_, err := r.pool.Exec(ctx, query, status, id)
	return err
}

// SaveResult marks the job completed with its batch report.
func (r *JobRepo) SaveResult(ctx context.Context, id uuid.UUID, report models.BatchReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		"UPDATE device_jobs SET status = $1, result_json = $2, completed_at = NOW() WHERE id = $3",
		models.JobStatusCompleted, data, id,
	)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE device_jobs SET status = $1, error_message = $2, completed_at = NOW() WHERE id = $3",
		models.JobStatusFailed, errMsg, id,
	)
	return err
}
