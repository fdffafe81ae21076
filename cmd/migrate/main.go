package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"ligandscreen/adapters/postgres"
	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal/errors"
	"ligandscreen/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		log.Fatal("Usage: migrate [database_url] [runs_json_dir]  (or set DATABASE_URL)")
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema at version %s", runner.Version())

	if len(os.Args) < 3 {
		return
	}

	// Import run JSON files written by the directory reporter.
	runsDir := os.Args[2]
	files, err := filepath.Glob(filepath.Join(runsDir, "*.json"))
	if err != nil {
		log.Fatalf("Failed to list run files: %v", err)
	}
	log.Printf("Found %d run files to import from %s", len(files), runsDir)

	repo := postgres.NewRunRepository(db)
	imported, skipped := 0, 0
	for _, file := range files {
		run, err := loadRun(file)
		if err != nil {
			log.Printf("Skipping %s: %v", file, err)
			skipped++
			continue
		}
		if err := repo.Save(ctx, run); err != nil {
			if errors.HasCode(err, errors.CodeConflict) {
				log.Printf("Run %s already imported", run.ID)
			} else {
				log.Printf("Failed to save run %s: %v", run.ID, err)
			}
			skipped++
			continue
		}
		imported++
	}
	log.Printf("Import complete: %d imported, %d skipped", imported, skipped)
}

func loadRun(path string) (*screening.ScreeningRun, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run screening.ScreeningRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, err
	}
	if run.ID.IsEmpty() {
		run.ID = core.RunID(strings.TrimSuffix(filepath.Base(path), ".json"))
	}
	return &run, nil
}
