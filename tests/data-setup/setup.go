package main

import (
	"database/sql"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gymcore-backend/internal/config"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed schema.sql
var schema string

type Gym struct {
	Name       string `yaml:"name"`
	UniqueCode string `yaml:"unique_code"`
}

type Product struct {
	Name    string          `yaml:"name"`
	Barcode string          `yaml:"barcode"`
	Price   decimal.Decimal `yaml:"price"`
	Stock   int             `yaml:"stock"`
}

type SetupData struct {
	ConfigFile string    `yaml:"config_file"`
	Gym        Gym       `yaml:"gym"`
	Products   []Product `yaml:"products"`
}

func main() {
	setupFile := flag.String("setup", "tests/data-setup/gym.yaml", "Path to the seed data file")
	schemaOnly := flag.Bool("schema-only", false, "Create the tables and skip seeding")
	flag.Parse()

	// Check if file exists, if not try relative path
	if _, err := os.Stat(*setupFile); os.IsNotExist(err) {
		*setupFile = "gym.yaml"
	}

	setupData, err := readSetupFile(*setupFile)
	if err != nil {
		log.Fatalf("Failed to read setup file: %v", err)
	}

	cfg, err := config.Load(resolveConfigPath(setupData.ConfigFile))
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Schema applied")
	if *schemaOnly {
		return
	}

	if err := populateData(db, setupData); err != nil {
		log.Fatalf("Failed to populate data: %v", err)
	}
	log.Println("Seed data successfully populated")
}

func readSetupFile(filename string) (*SetupData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var setupData SetupData
	if err := yaml.Unmarshal(data, &setupData); err != nil {
		return nil, err
	}
	if setupData.Gym.UniqueCode == "" {
		return nil, fmt.Errorf("gym unique_code is required")
	}
	return &setupData, nil
}

func resolveConfigPath(configPath string) string {
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	fullPath := filepath.Join(findProjectRoot(), configPath)
	if _, err := os.Stat(fullPath); err == nil {
		return fullPath
	}

	// Let config.Load fail with a clear error
	return configPath
}

func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "."
}

// populateData upserts the gym by its code and each product by barcode, so
// running the seeder twice leaves one copy of everything.
func populateData(db *sql.DB, data *SetupData) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var gymID string
	err = tx.QueryRow(
		`INSERT INTO gyms (id, name, unique_code) VALUES ($1, $2, $3)
		 ON CONFLICT (unique_code) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		uuid.NewString(), data.Gym.Name, data.Gym.UniqueCode,
	).Scan(&gymID)
	if err != nil {
		return fmt.Errorf("upsert gym %s: %w", data.Gym.UniqueCode, err)
	}
	log.Printf("Gym %q ready (id=%s, code=%s)", data.Gym.Name, gymID, data.Gym.UniqueCode)

	for _, p := range data.Products {
		if p.Stock < 0 {
			return fmt.Errorf("product %s: stock cannot be negative", p.Barcode)
		}
		_, err := tx.Exec(
			`INSERT INTO products (id, gym_id, name, barcode, price, stock, version)
			 VALUES ($1, $2, $3, $4, $5, $6, 0)
			 ON CONFLICT (gym_id, barcode) DO UPDATE SET
			     name = EXCLUDED.name,
			     price = EXCLUDED.price,
			     stock = EXCLUDED.stock,
			     version = products.version + 1`,
			uuid.NewString(), gymID, p.Name, p.Barcode, p.Price, p.Stock,
		)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Barcode, err)
		}
		log.Printf("  product %s %q: %d in stock at %s", p.Barcode, p.Name, p.Stock, p.Price.StringFixed(2))
	}

	return tx.Commit()
}
