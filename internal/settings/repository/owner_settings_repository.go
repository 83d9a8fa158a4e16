package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sup/internal/domain"
	apperrors "sup/internal/errors"
)

type MySQLOwnerSettingsRepository struct {
	db *sql.DB
}

func NewMySQLOwnerSettingsRepository(db *sql.DB) *MySQLOwnerSettingsRepository {
	return &MySQLOwnerSettingsRepository{db: db}
}

func (r *MySQLOwnerSettingsRepository) FindByOwnerID(ctx context.Context, ownerID int) (*domain.OwnerSettings, error) {
	query := `
		SELECT id, ownerId, enforceStock, createdAt, updatedAt
		FROM OwnerSettings
		WHERE ownerId = ?
	`

	var settings domain.OwnerSettings
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&settings.ID, &settings.OwnerID, &settings.EnforceStock,
		&settings.CreatedAt, &settings.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("settings for owner id %d not found", ownerID))
	}
	if err != nil {
		return nil, fmt.Errorf("querying owner settings by owner id: %w", err)
	}

	return &settings, nil
}
