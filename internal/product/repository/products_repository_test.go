package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sup/internal/errors"
	"sup/internal/testutil"
)

// Unit Tests

func TestNewMySQLRepository(t *testing.T) {
	db := &sql.DB{}
	repo := NewMySQLRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

// Integration Tests

func insertProduct(t *testing.T, db *sql.DB, ownerID int, name string, stock int, threshold int) int {
	t.Helper()
	result, err := db.Exec(`
		INSERT INTO Product (ownerId, code, name, description, unit, salePrice, acquisitionPrice, stock, lowStockThreshold)
		VALUES (?, 1, ?, 'desc', 'UNIDADES', 10.50, 7.25, ?, ?)
	`, ownerID, name, stock, threshold)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return int(id)
}

func TestRepository_FindByIDsAndOwner_Success(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLRepository(db)

	id1 := insertProduct(t, db, 1, "Product 1", 100, 10)
	id2 := insertProduct(t, db, 1, "Product 2", 50, 10)
	other := insertProduct(t, db, 2, "Product 3", 25, 10)

	products, err := repo.FindByIDsAndOwner(context.Background(), []int{id2, id1, other}, 1)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, id1, products[0].ID)
	assert.Equal(t, id2, products[1].ID)
	assert.Equal(t, "10.50", products[0].SalePrice.StringFixed(2))
	assert.Equal(t, "7.25", products[0].AcquisitionPrice.StringFixed(2))
	assert.Nil(t, products[0].SupplierID)
}

func TestRepository_FindByIDsAndOwner_EmptyIDs(t *testing.T) {
	repo := NewMySQLRepository(&sql.DB{})

	products, err := repo.FindByIDsAndOwner(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Nil(t, products)
}

func TestRepository_FindByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLRepository(db)
	id := insertProduct(t, db, 1, "Owned", 1, 10)

	_, err := repo.FindByID(context.Background(), id, 2)
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestRepository_AdjustStock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLRepository(db)
	ctx := context.Background()
	id := insertProduct(t, db, 1, "Yerba", 10, 10)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	locked, err := repo.FindByIDForUpdate(ctx, tx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, locked.Stock)
	require.NoError(t, repo.AdjustStock(ctx, tx, id, -12))
	require.NoError(t, tx.Commit())

	p, err := repo.FindByID(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, -2, p.Stock)

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	err = repo.AdjustStock(ctx, tx, 999999, 1)
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestRepository_FindLowStock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLRepository(db)
	insertProduct(t, db, 1, "Zanahoria", 2, 10)
	insertProduct(t, db, 1, "Arroz", 9, 10)
	insertProduct(t, db, 1, "Papa", 10, 10)
	insertProduct(t, db, 2, "Batata", 0, 10)

	products, total, err := repo.FindLowStock(context.Background(), 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 1)
	assert.Equal(t, "Arroz", products[0].Name)
}

func TestRepository_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLRepository(db)
	ctx := context.Background()
	id := insertProduct(t, db, 1, "Te", 5, 10)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = repo.Delete(ctx, tx, id, 2)
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
	require.NoError(t, repo.Delete(ctx, tx, id, 1))
	require.NoError(t, tx.Commit())

	_, err = repo.FindByID(ctx, id, 1)
	_, ok = errors.IsNotFoundError(err)
	assert.True(t, ok)
}
