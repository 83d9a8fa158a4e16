package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"sup/internal/domain"
	"sup/internal/dto"
	apperrors "sup/internal/errors"
)

const saleColumns = `id, ownerId, clientId, code, soldAt, total, createdAt, updatedAt`

type MySQLSaleRepository struct {
	db *sql.DB
}

func NewMySQLSaleRepository(db *sql.DB) *MySQLSaleRepository {
	return &MySQLSaleRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var s domain.Sale
	var clientID sql.NullInt64
	err := row.Scan(&s.ID, &s.OwnerID, &clientID, &s.Code, &s.SoldAt, &s.Total, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	if clientID.Valid {
		id := int(clientID.Int64)
		s.ClientID = &id
	}
	return s, nil
}

func (r *MySQLSaleRepository) Insert(ctx context.Context, tx *sql.Tx, sale domain.Sale) (uint, error) {
	query := `INSERT INTO Sales (ownerId, clientId, code, soldAt, total) VALUES (?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, query, sale.OwnerID, sale.ClientID, sale.Code, sale.SoldAt, sale.Total)
	if err != nil {
		return 0, fmt.Errorf("inserting sale: %w", err)
	}

	lastInsertID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	return uint(lastInsertID), nil
}

func (r *MySQLSaleRepository) FindByID(ctx context.Context, id uint, ownerID int) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM Sales WHERE id = ? AND ownerId = ?`

	sale, err := scanSale(r.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sale with id %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying sale by id: %w", err)
	}

	return &sale, nil
}

// FindByIDForUpdate locks the sale row. Every ledger operation takes this
// lock first, which serializes all line mutations of one sale.
func (r *MySQLSaleRepository) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id uint, ownerID int) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM Sales WHERE id = ? AND ownerId = ? FOR UPDATE`

	sale, err := scanSale(tx.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sale with id %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("locking sale: %w", err)
	}

	return &sale, nil
}

func (r *MySQLSaleRepository) List(ctx context.Context, ownerID int, filter dto.SaleFilter) ([]domain.Sale, int, error) {
	where := ` WHERE ownerId = ?`
	args := []any{ownerID}
	if filter.From != nil {
		where += ` AND soldAt >= ?`
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where += ` AND soldAt < ?`
		args = append(args, *filter.To)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting sales: %w", err)
	}

	query := `SELECT ` + saleColumns + ` FROM Sales` + where + ` ORDER BY soldAt DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying sales: %w", err)
	}
	defer rows.Close()

	sales := []domain.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning sale row: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating sale rows: %w", err)
	}

	return sales, total, nil
}

func (r *MySQLSaleRepository) UpdateHeader(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	query := `UPDATE Sales SET clientId = ?, code = ?, soldAt = ? WHERE id = ? AND ownerId = ?`

	_, err := tx.ExecContext(ctx, query, sale.ClientID, sale.Code, sale.SoldAt, sale.ID, sale.OwnerID)
	if err != nil {
		return fmt.Errorf("updating sale header: %w", err)
	}

	return nil
}

func (r *MySQLSaleRepository) UpdateTotal(ctx context.Context, tx *sql.Tx, id uint, total decimal.Decimal) error {
	query := `UPDATE Sales SET total = ? WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, total, id)
	if err != nil {
		return fmt.Errorf("updating sale total: %w", err)
	}

	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	return nil
}

func (r *MySQLSaleRepository) Delete(ctx context.Context, tx *sql.Tx, id uint) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM Sales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting sale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("sale with id %d not found", id))
	}

	return nil
}
