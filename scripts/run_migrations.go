package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/safar/peptide-shop/internal/config"
	"github.com/safar/peptide-shop/internal/database"
	"go.uber.org/zap"
)

// Applied versions are tracked in schema_migrations so that "up" only runs new files and
// "down" only reverts applied ones.
func main() {
	dir := flag.String("dir", "migrations", "Directory holding NNN_name.up.sql / .down.sql files")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run scripts/run_migrations.go [-dir migrations] up|down")
	}
	direction := flag.Arg(0)
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Connect to database", zap.Error(err))
	}
	defer db.Close()

	n, err := migrate(ctx, db, *dir, direction, logger)
	if err != nil {
		logger.Fatal("Migration failed", zap.String("direction", direction), zap.Error(err))
	}
	logger.Info("Migrations complete", zap.String("direction", direction), zap.Int("applied", n))
}

func migrate(ctx context.Context, db *sql.DB, dir, direction string, logger *zap.Logger) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	files, err := migrationFiles(dir, direction)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, name := range files {
		version := strings.TrimSuffix(name, "."+direction+".sql")
		if (direction == "up") == applied[version] {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return count, fmt.Errorf("read migration file %s: %w", name, err)
		}

		logger.Info("Running migration", zap.String("file", name))
		err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			if direction == "up" {
				_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			} else {
				_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
			}
			return err
		})
		if err != nil {
			return count, fmt.Errorf("execute migration %s: %w", name, err)
		}
		count++
	}

	return count, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// migrationFiles lists the files for direction, oldest first for up and newest first for down.
func migrationFiles(dir, direction string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), "."+direction+".sql") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
