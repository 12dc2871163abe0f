package postgres

import (
	"context"
	"errors"
	"fmt"

	"streamhub/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresIdentityRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresIdentityRepository(pool *pgxpool.Pool) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{pool: pool}
}

// FindIdentityByID returns domain.ErrIdentityNotFound for unknown and
// deactivated accounts alike.
func (r *PostgresIdentityRepository) FindIdentityByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	var userID, displayName, email, role string
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, role FROM users WHERE id = $1 AND is_active = TRUE`,
		string(id),
	).Scan(&userID, &displayName, &email, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &domain.Identity{
		UserID:      domain.UserID(userID),
		DisplayName: displayName,
		Email:       email,
		Role:        domain.Role(role),
	}, nil
}

// PutIdentity upserts an account. Used to seed identities from config.
func (r *PostgresIdentityRepository) PutIdentity(ctx context.Context, identity domain.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, email = EXCLUDED.email, role = EXCLUDED.role`,
		string(identity.UserID), identity.DisplayName, identity.Email, string(identity.Role),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
