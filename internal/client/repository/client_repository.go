package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "sup/internal/errors"
)

type MySQLClientRepository struct {
	db *sql.DB
}

func NewMySQLClientRepository(db *sql.DB) *MySQLClientRepository {
	return &MySQLClientRepository{db: db}
}

// FindOwnerID returns the owner a client is registered under.
func (r *MySQLClientRepository) FindOwnerID(ctx context.Context, clientID int) (int, error) {
	var ownerID int
	err := r.db.QueryRowContext(ctx, `SELECT ownerId FROM Clients WHERE id = ?`, clientID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewNotFoundError(fmt.Sprintf("client with id %d not found", clientID))
	}
	if err != nil {
		return 0, fmt.Errorf("querying client owner: %w", err)
	}
	return ownerID, nil
}
