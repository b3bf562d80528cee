//go:build integration

package integration

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gymcore-backend/internal/config"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "config/config.test.yaml", "path to config file")
}

// findFile resolves a repo-relative path whether the tests run from the
// module root or from tests/integration.
func findFile(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join("..", "..", path)
}

func prepareDB(t *testing.T) *sql.DB {
	t.Helper()
	if !flag.Parsed() {
		flag.Parse()
	}

	cfg, err := config.Load(findFile(configPath))
	require.NoError(t, err, "load config from %s", configPath)

	var db *sql.DB
	// Retry connection as DB might still be starting up
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(2 * time.Second)
	}
	require.NoError(t, err, "connect to database")
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(findFile("tests/data-setup/schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err, "apply schema")
	return db
}

func seedGym(t *testing.T, db *sql.DB) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO gyms (id, name, unique_code) VALUES ($1, $2, $3)`,
		id, "Integration Gym", "IT-"+id[:8])
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, db *sql.DB, gymID string, stock int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO products (id, gym_id, name, barcode, price, stock, version) VALUES ($1, $2, $3, $4, $5, $6, 0)`,
		id, gymID, "Protein Bar", id[:12], decimal.RequireFromString("3.50"), stock)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, db *sql.DB, productID string) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock))
	return stock
}
