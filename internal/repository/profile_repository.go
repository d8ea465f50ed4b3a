package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/rbac"
)

var ErrProfileNotFound = errors.New("profile not found")

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ProfileRepository struct {
	db Querier
}

func NewProfileRepository(db Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (models.Profile, error) {
	const query = `
		SELECT id::text, COALESCE(email, ''), COALESCE(role, ''), COALESCE(status, 'active'), COALESCE(updated_at, NOW())
		FROM profiles WHERE id = $1
	`

	var (
		profile models.Profile
		role    string
		status  string
	)
	row := r.db.QueryRow(ctx, query, id)
	if err := row.Scan(
		&profile.ID,
		&profile.Email,
		&role,
		&status,
		&profile.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrProfileNotFound
		}
		return models.Profile{}, fmt.Errorf("select profile %s: %w", id, err)
	}

	profile.Role = rbac.ParseRole(role)
	profile.Status = models.ProfileStatus(strings.ToLower(strings.TrimSpace(status)))
	return profile, nil
}
