package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"classdeck-backend/internal/models"
)

// ErrProfileNotFound is returned by GetProfile when the student has no document.
var ErrProfileNotFound = models.ErrProfileNotFound

// ProfileRepo stores one weekly schedule document per student. Writes always
// replace the whole document.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) ListProfiles(ctx context.Context) ([]models.StudentAppProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, location_id, sessions
		FROM student_app_profiles
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.StudentAppProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *ProfileRepo) GetProfile(ctx context.Context, studentID string) (models.StudentAppProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, location_id, sessions
		FROM student_app_profiles
		WHERE id = $1
	`, studentID)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StudentAppProfile{}, ErrProfileNotFound
	}
	return p, err
}

func (r *ProfileRepo) SaveProfile(ctx context.Context, p models.StudentAppProfile) error {
	sessions, err := json.Marshal(p.Sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions for %s: %w", p.StudentID, err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO student_app_profiles (id, location_id, sessions, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET location_id = EXCLUDED.location_id,
			sessions = EXCLUDED.sessions,
			updated_at = NOW()
	`, p.StudentID, p.LocationID, sessions)
	return err
}

func scanProfile(row pgx.Row) (models.StudentAppProfile, error) {
	var (
		p        models.StudentAppProfile
		sessions []byte
	)
	if err := row.Scan(&p.StudentID, &p.LocationID, &sessions); err != nil {
		return p, err
	}
	p.Sessions = map[string]models.DailySessions{}
	if len(sessions) > 0 {
		if err := json.Unmarshal(sessions, &p.Sessions); err != nil {
			return p, fmt.Errorf("failed to decode sessions for %s: %w", p.StudentID, err)
		}
	}
	return p, nil
}
