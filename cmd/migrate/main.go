package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ewallet/internal/config"
	"ewallet/internal/db"
	"ewallet/internal/logging"

	"go.uber.org/zap"
)

const downMarker = "-- +migrate Down"

// Usage: migrate [up|down]. "down" reverts the most recently applied file.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL, 1)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		logger.Fatal("failed to ensure schema_migrations", zap.Error(err))
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}
	switch direction {
	case "up":
		err = migrateUp(ctx, database, logger)
	case "down":
		err = migrateDown(ctx, database, logger)
	default:
		logger.Fatal("unknown direction", zap.String("direction", direction))
	}
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func migrateUp(ctx context.Context, conn querier, logger *zap.Logger) error {
	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := conn.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return err
		}
		if exists {
			continue
		}
		up, _, err := readSections(file)
		if err != nil {
			return err
		}
		if err := execAll(ctx, conn, up); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			return err
		}
		logger.Info("applied migration", zap.String("file", filename))
	}
	return nil
}

func migrateDown(ctx context.Context, conn querier, logger *zap.Logger) error {
	var filename string
	err := conn.GetContext(ctx, &filename, `SELECT filename FROM schema_migrations ORDER BY filename DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Info("nothing to revert")
		return nil
	}
	if err != nil {
		return err
	}
	_, down, err := readSections(filepath.Join("migrations", filename))
	if err != nil {
		return err
	}
	if err := execAll(ctx, conn, down); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM schema_migrations WHERE filename = $1`, filename); err != nil {
		return err
	}
	logger.Info("reverted migration", zap.String("file", filename))
	return nil
}

func readSections(path string) (string, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	up, down, _ := strings.Cut(string(content), downMarker)
	return up, down, nil
}

func execAll(ctx context.Context, conn querier, sqlText string) error {
	for _, stmt := range splitSQL(sqlText) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
