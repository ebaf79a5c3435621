package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"camwatch/internal/app"
	"camwatch/internal/config"
	"camwatch/internal/repository"
	"camwatch/internal/repository/file"
)

// Copies a legacy .sms-state.json into the configured database backend.
func main() {
	cfg := config.Load()

	statePath := flag.String("state", cfg.StateFile, "Legacy alert state file")
	backend := flag.String("backend", cfg.StateBackend, "Target backend (sqlite or postgres)")
	sqlitePath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()

	if *backend != "sqlite" && *backend != "postgres" {
		log.Fatalf("Target backend must be sqlite or postgres, got %q", *backend)
	}
	cfg.StateBackend = *backend
	cfg.SQLitePath = *sqlitePath

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state, err := file.NewStateRepository(*statePath).Load(ctx)
	if errors.Is(err, repository.ErrStateNotFound) {
		fmt.Printf("No alert state found at %s, nothing to migrate\n", *statePath)
		return
	}
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *statePath, err)
	}

	target, closeTarget, err := app.OpenStateRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", *backend, err)
	}
	defer closeTarget()

	if err := target.Save(ctx, state); err != nil {
		closeTarget()
		log.Fatalf("Failed to write alert state: %v", err)
	}

	fmt.Printf("Migrated alert state to %s: streak %d, %d history records\n",
		*backend, state.ConsecutiveDangerCount, len(state.AlertHistory))
	if state.LastAlertSentAt != nil {
		fmt.Printf("   Last alert sent: %s\n", state.LastAlertSentAt.Format(time.RFC3339))
	}
}
