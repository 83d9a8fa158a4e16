package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"sup/internal/domain"
	apperrors "sup/internal/errors"
)

const saleLineColumns = `id, saleId, productId, productName, quantity, unitPrice, subtotal`

type MySQLSaleLineRepository struct {
	db *sql.DB
}

func NewMySQLSaleLineRepository(db *sql.DB) *MySQLSaleLineRepository {
	return &MySQLSaleLineRepository{db: db}
}

func scanSaleLine(row rowScanner) (domain.SaleLine, error) {
	var l domain.SaleLine
	var productID sql.NullInt64
	err := row.Scan(&l.ID, &l.SaleID, &productID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Subtotal)
	if err != nil {
		return domain.SaleLine{}, err
	}
	if productID.Valid {
		id := int(productID.Int64)
		l.ProductID = &id
	}
	return l, nil
}

func (r *MySQLSaleLineRepository) Insert(ctx context.Context, tx *sql.Tx, line domain.SaleLine) (uint, error) {
	query := `
		INSERT INTO SaleLines (saleId, productId, productName, quantity, unitPrice, subtotal)
		VALUES (?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, query,
		line.SaleID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.Subtotal,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting sale line: %w", err)
	}

	lastInsertID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	return uint(lastInsertID), nil
}

// FindByIDForUpdate locks a line of the given sale. A line of another sale is
// reported as not found.
func (r *MySQLSaleLineRepository) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, saleID uint, lineID uint) (*domain.SaleLine, error) {
	query := `SELECT ` + saleLineColumns + ` FROM SaleLines WHERE id = ? AND saleId = ? FOR UPDATE`

	line, err := scanSaleLine(tx.QueryRowContext(ctx, query, lineID, saleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sale line with id %d not found in sale %d", lineID, saleID))
	}
	if err != nil {
		return nil, fmt.Errorf("locking sale line: %w", err)
	}

	return &line, nil
}

// FindBySaleIDForUpdate returns the live line set of a sale inside tx. It is
// what totals are summed from, so it must see the writes of the same tx.
func (r *MySQLSaleLineRepository) FindBySaleIDForUpdate(ctx context.Context, tx *sql.Tx, saleID uint) ([]domain.SaleLine, error) {
	query := `SELECT ` + saleLineColumns + ` FROM SaleLines WHERE saleId = ? ORDER BY id FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("querying sale lines: %w", err)
	}
	defer rows.Close()

	return collectLines(rows)
}

func (r *MySQLSaleLineRepository) ListBySaleID(ctx context.Context, saleID uint) ([]domain.SaleLine, error) {
	query := `SELECT ` + saleLineColumns + ` FROM SaleLines WHERE saleId = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("querying sale lines: %w", err)
	}
	defer rows.Close()

	return collectLines(rows)
}

func collectLines(rows *sql.Rows) ([]domain.SaleLine, error) {
	lines := []domain.SaleLine{}
	for rows.Next() {
		line, err := scanSaleLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sale line row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sale line rows: %w", err)
	}
	return lines, nil
}

func (r *MySQLSaleLineRepository) UpdateQuantity(ctx context.Context, tx *sql.Tx, lineID uint, quantity int, subtotal decimal.Decimal) error {
	query := `UPDATE SaleLines SET quantity = ?, subtotal = ? WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, quantity, subtotal, lineID)
	if err != nil {
		return fmt.Errorf("updating sale line quantity: %w", err)
	}

	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	return nil
}

func (r *MySQLSaleLineRepository) Delete(ctx context.Context, tx *sql.Tx, lineID uint) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM SaleLines WHERE id = ?`, lineID)
	if err != nil {
		return fmt.Errorf("deleting sale line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("sale line with id %d not found", lineID))
	}

	return nil
}

func (r *MySQLSaleLineRepository) DeleteBySaleID(ctx context.Context, tx *sql.Tx, saleID uint) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM SaleLines WHERE saleId = ?`, saleID); err != nil {
		return fmt.Errorf("deleting sale lines: %w", err)
	}
	return nil
}

// ClearProduct detaches every line from a product that is about to be
// deleted. Name and price snapshots stay on the lines.
func (r *MySQLSaleLineRepository) ClearProduct(ctx context.Context, tx *sql.Tx, productID int) (int64, error) {
	result, err := tx.ExecContext(ctx, `UPDATE SaleLines SET productId = NULL WHERE productId = ?`, productID)
	if err != nil {
		return 0, fmt.Errorf("clearing product from sale lines: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected, nil
}
