package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorly/proctor-backend/internal/model"
)

// CandidateRepository handles candidate account data access.
type CandidateRepository struct {
	pool *pgxpool.Pool
}

// NewCandidateRepository creates a new CandidateRepository.
func NewCandidateRepository(pool *pgxpool.Pool) *CandidateRepository {
	return &CandidateRepository{pool: pool}
}

// GetByUsername retrieves a candidate by their login name.
func (r *CandidateRepository) GetByUsername(ctx context.Context, username string) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash, created_at
		 FROM candidates WHERE username = $1`, username,
	).Scan(&c.ID, &c.Name, &c.Username, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID retrieves a candidate by id.
func (r *CandidateRepository) GetByID(ctx context.Context, id int) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash, created_at
		 FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Username, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BulkCreate inserts candidate accounts, skipping usernames that already
// exist. Used by the seeding command.
func (r *CandidateRepository) BulkCreate(ctx context.Context, candidates []model.Candidate) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	created := 0
	for _, c := range candidates {
		tag, err := tx.Exec(ctx,
			`INSERT INTO candidates (name, username, password_hash)
			 VALUES ($1,$2,$3)
			 ON CONFLICT (username) DO NOTHING`,
			c.Name, c.Username, c.PasswordHash)
		if err != nil {
			return 0, fmt.Errorf("insert candidate %s: %w", c.Username, err)
		}
		created += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}
