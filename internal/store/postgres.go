package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gurkepunktli/hslu-iot/internal/config"
	"github.com/gurkepunktli/hslu-iot/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnString builds the pgx connection string from config.
func ConnString(cfg *config.Config) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var alertColumns = []string{
	"alert_id",
	"device_id",
	"alert_type",
	"severity",
	"baseline_lat",
	"baseline_lon",
	"latitude",
	"longitude",
	"distance_m",
	"triggered_at",
}

func alertRows(alerts []domain.TheftAlert) [][]interface{} {
	rows := make([][]interface{}, len(alerts))
	for i, a := range alerts {
		rows[i] = []interface{}{
			a.ID,
			a.DeviceID,
			string(a.Type),
			string(a.Severity),
			a.Baseline.Lat,
			a.Baseline.Lon,
			a.Position.Lat,
			a.Position.Lon,
			a.DistanceM,
			a.TriggeredAt,
		}
	}
	return rows
}

// InsertAlerts copies a batch into theft_alerts.
func (s *PostgresStore) InsertAlerts(ctx context.Context, alerts []domain.TheftAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"theft_alerts"},
		alertColumns,
		pgx.CopyFromRows(alertRows(alerts)),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(alerts), err)
	}

	return nil
}
