package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
)

// GetUserByUsername implements ports.UserRepository.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := db.Pool.QueryRow(ctx, `SELECT id, username, password_hash FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "query user", err)
	}
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	id := uuid.NewString()
	_, err := db.Pool.Exec(ctx, `INSERT INTO users (id, username, password_hash) VALUES ($1,$2,$3)`, id, username, passwordHash)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "insert user", err)
	}
	return &domain.User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}
