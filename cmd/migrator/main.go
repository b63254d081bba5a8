package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	var storagePath, migrationsPath, migrationsTable string
	var down bool

	flag.StringVar(&storagePath, "storage-path", "", "postgres url or user:pass@host:port/db")
	flag.StringVar(&migrationsPath, "migrations-path", "./migrations", "path to a directory containing migration files")
	flag.StringVar(&migrationsTable, "migrations-table", "migrations", "name of migrations table")
	flag.BoolVar(&down, "down", false, "roll every migration back")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to read .env", slog.String("error", err.Error()))
	}
	if storagePath == "" {
		storagePath = os.Getenv("STORAGE_PATH")
	}
	if storagePath == "" {
		log.Error("storage-path is required")
		os.Exit(1)
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL(storagePath, migrationsTable))
	if err != nil {
		log.Error("failed to init migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return
		}
		log.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("migrations completed successfully", slog.Bool("down", down))
}

func databaseURL(storagePath string, migrationsTable string) string {
	if !strings.HasPrefix(storagePath, "postgres://") && !strings.HasPrefix(storagePath, "postgresql://") {
		storagePath = "postgres://" + storagePath + "?sslmode=disable"
	}
	sep := "?"
	if strings.Contains(storagePath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sx-migrations-table=%s", storagePath, sep, migrationsTable)
}
