package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "bike_user"),
		dbGetEnv("DB_PASSWORD", "bike_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "bike_tracker"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1AlertsTable(ctx, conn)
	step2Indexes(ctx, conn)
	step3Verify(ctx, conn)

	fmt.Println("\n✅ Alert history schema ready")
	fmt.Println("   Start the bridge with DB_ENABLED=true")
}

// ─────────────────────────────────────────────────────────────
// Step 1: theft_alerts table
// ─────────────────────────────────────────────────────────────
func step1AlertsTable(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: theft_alerts table ──────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS theft_alerts (
			id               BIGSERIAL        PRIMARY KEY,

			-- Generated by the bridge; unique so a retried batch
			-- cannot insert the same alert twice
			alert_id         UUID             NOT NULL UNIQUE,

			device_id        TEXT             NOT NULL,

			-- Must match domain.AlertType / domain.AlertSeverity
			alert_type       TEXT             NOT NULL,
			severity         TEXT             NOT NULL,

			-- Where the bike was locked
			baseline_lat     DOUBLE PRECISION NOT NULL,
			baseline_lon     DOUBLE PRECISION NOT NULL,

			-- Where it was seen when the alert fired
			latitude         DOUBLE PRECISION NOT NULL,
			longitude        DOUBLE PRECISION NOT NULL,

			distance_m       DOUBLE PRECISION NOT NULL,
			triggered_at     TIMESTAMPTZ      NOT NULL,
			recorded_at      TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- NULL until someone confirms the bike was recovered
			-- or the alert was a false positive
			resolved_at      TIMESTAMPTZ,

			CONSTRAINT chk_alert_type CHECK (alert_type IN ('THEFT')),
			CONSTRAINT chk_severity CHECK (severity IN ('WARNING', 'CRITICAL'))
		);
	`, "theft_alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2: Indexes
// ─────────────────────────────────────────────────────────────
func step2Indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_theft_alerts_device_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_theft_alerts_device_time
				  ON theft_alerts (device_id, triggered_at DESC);`,
			why: "query: alert history for one bike",
		},
		{
			name: "idx_theft_alerts_open",
			sql: `CREATE INDEX IF NOT EXISTS idx_theft_alerts_open
				  ON theft_alerts (triggered_at DESC)
				  WHERE resolved_at IS NULL;`,
			why: "query: unresolved alerts only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-32s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 3: Verify
// ─────────────────────────────────────────────────────────────
func step3Verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Verification ────────────────────────")

	var exists bool
	err := conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_name = 'theft_alerts'
		)
	`).Scan(&exists)
	if err != nil || !exists {
		log.Fatalf("Table theft_alerts was not created: %v", err)
	}
	fmt.Println("  ✓ table: theft_alerts")

	var indexCount int
	err = conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename = 'theft_alerts'
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
