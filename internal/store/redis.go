package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gurkepunktli/hslu-iot/internal/config"
	"github.com/gurkepunktli/hslu-iot/internal/domain"
)

const (
	bikesGeoKey = "bikes:geo"
	stateTTL    = 5 * time.Minute
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func stateKey(deviceID string) string     { return fmt.Sprintf("bike:%s:state", deviceID) }
func telemetryChan(deviceID string) string { return fmt.Sprintf("bike:%s:telemetry", deviceID) }
func alertsChan(deviceID string) string    { return fmt.Sprintf("bike:%s:alerts", deviceID) }

func stateFields(snap domain.DeviceSnapshot) map[string]interface{} {
	fields := map[string]interface{}{
		"device_id":  snap.DeviceID,
		"state":      string(snap.State),
		"lat":        snap.Position.Lat,
		"lon":        snap.Position.Lon,
		"fix":        snap.Fix,
		"lockmode":   snap.Lockmode,
		"speed_kn":   snap.SpeedKn,
		"updated_at": snap.UpdatedAt.Unix(),
	}
	if snap.Baseline != nil {
		fields["baseline_lat"] = snap.Baseline.Lat
		fields["baseline_lon"] = snap.Baseline.Lon
	}
	return fields
}

// PipelineStateUpdate writes the snapshot hash, moves the bike in the
// geo set when the fix is usable, and publishes the snapshot.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, snap domain.DeviceSnapshot) error {
	fields := stateFields(snap)

	pubPayload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := stateKey(snap.DeviceID)

	pipe := r.client.Pipeline()

	if snap.Baseline == nil {
		pipe.HDel(ctx, key, "baseline_lat", "baseline_lon")
	}
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, stateTTL)
	if snap.Fix && !snap.Position.IsZero() {
		pipe.GeoAdd(ctx, bikesGeoKey, &redis.GeoLocation{
			Name:      snap.DeviceID,
			Longitude: snap.Position.Lon,
			Latitude:  snap.Position.Lat,
		})
	}
	pipe.Publish(ctx, telemetryChan(snap.DeviceID), pubPayload)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

func (r *RedisStore) PublishAlert(ctx context.Context, deviceID string, payload []byte) error {
	return r.client.Publish(ctx, alertsChan(deviceID), payload).Err()
}
