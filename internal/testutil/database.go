package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"sup/internal/config"
	"sup/internal/infrastructure/mysql"
)

// TestDatabaseConfig points at the MySQL database integration tests run
// against. TEST_DB_HOST overrides the host.
func TestDatabaseConfig() config.DatabaseConfig {
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	return config.DatabaseConfig{
		Host: host,
		Port: 3306,
		User: "root",
		Name: "sup_test",
	}
}

// SetupTestDB opens the test database and skips the test when it is not
// reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", mysql.DSN(TestDatabaseConfig()))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	return db
}

// SetupTestTables creates the schema with the same migrations the service
// runs on start.
func SetupTestTables(t *testing.T, db *sql.DB) {
	t.Helper()

	if err := mysql.Migrate(mysql.DSN(TestDatabaseConfig())); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
}

// CleanupTestDB empties every table, children first, and closes db.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	if db == nil {
		return
	}

	tables := []string{"SaleLines", "Sales", "Product", "Suppliers", "Clients", "OwnerSettings"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}

	db.Close()
}
