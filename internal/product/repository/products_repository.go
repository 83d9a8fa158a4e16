package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sup/internal/domain"
	apperrors "sup/internal/errors"
)

const productColumns = `id, ownerId, supplierId, code, name, description, unit,
	salePrice, acquisitionPrice, stock, lowStockThreshold, createdAt, updatedAt`

type MySQLRepository struct {
	db *sql.DB
}

func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var supplierID sql.NullInt64
	err := row.Scan(
		&p.ID, &p.OwnerID, &supplierID, &p.Code, &p.Name, &p.Description, &p.Unit,
		&p.SalePrice, &p.AcquisitionPrice, &p.Stock, &p.LowStockThreshold,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	if supplierID.Valid {
		id := int(supplierID.Int64)
		p.SupplierID = &id
	}
	return p, nil
}

func (r *MySQLRepository) FindByIDsAndOwner(ctx context.Context, ids []int, ownerID int) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, ownerID)

	query := fmt.Sprintf(`
		SELECT %s
		FROM Product
		WHERE id IN (%s)
		  AND ownerId = ?
		ORDER BY id`,
		productColumns, strings.Join(placeholders, ", "),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}

	return products, nil
}

func (r *MySQLRepository) FindByID(ctx context.Context, productID int, ownerID int) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM Product WHERE id = ? AND ownerId = ?`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, productID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}
	if err != nil {
		return nil, fmt.Errorf("querying product by id: %w", err)
	}
	return &p, nil
}

// FindByIDForUpdate reads the product and holds its row lock until tx ends.
func (r *MySQLRepository) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, productID int, ownerID int) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM Product WHERE id = ? AND ownerId = ? FOR UPDATE`

	p, err := scanProduct(tx.QueryRowContext(ctx, query, productID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}
	if err != nil {
		return nil, fmt.Errorf("locking product: %w", err)
	}
	return &p, nil
}

func (r *MySQLRepository) AdjustStock(ctx context.Context, tx *sql.Tx, productID int, delta int) error {
	query := `UPDATE Product SET stock = stock + ? WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, delta, productID)
	if err != nil {
		return fmt.Errorf("adjusting product stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}

	return nil
}

// FindLowStock pages through the owner's products whose stock is under
// their alert threshold, ordered by name.
func (r *MySQLRepository) FindLowStock(ctx context.Context, ownerID int, limit, offset int) ([]domain.Product, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM Product WHERE ownerId = ? AND stock < lowStockThreshold`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting low stock products: %w", err)
	}

	query := `SELECT ` + productColumns + `
		FROM Product
		WHERE ownerId = ? AND stock < lowStockThreshold
		ORDER BY name, id
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying low stock products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating product rows: %w", err)
	}

	return products, total, nil
}

func (r *MySQLRepository) Delete(ctx context.Context, tx *sql.Tx, productID int, ownerID int) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM Product WHERE id = ? AND ownerId = ?`, productID, ownerID)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", productID))
	}

	return nil
}
