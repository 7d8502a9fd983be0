package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/hotdot-game/hotdot/go/internal/dbconfig"
	"github.com/hotdot-game/hotdot/go/internal/sqlutil"
)

var statements = []string{
	`DO $$ BEGIN
		CREATE TYPE match_status AS ENUM ('creating', 'waiting', 'active', 'failed', 'finished');
	EXCEPTION
		WHEN duplicate_object THEN NULL;
	END $$`,
	`CREATE TABLE IF NOT EXISTS matches (
		id UUID PRIMARY KEY,
		status match_status NOT NULL DEFAULT 'creating',
		creator_id UUID NOT NULL,
		creator_name TEXT NOT NULL DEFAULT '',
		guesser_id UUID,
		guesser_name TEXT,
		challenge_id UUID,
		template JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// Serves find_oldest_waiting: oldest eligible row first.
	`CREATE INDEX IF NOT EXISTS idx_matches_waiting_created_at
		ON matches (created_at)
		WHERE status = 'waiting'`,
}

func main() {
	cfg := dbconfig.NewConfigFromEnv()
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ping: %v\n", err)
		os.Exit(1)
	}

	// All statements apply atomically.
	err = sqlutil.Run(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %q: %w", stmt[:40], err)
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("schema applied to %s\n", cfg.Database)
}
