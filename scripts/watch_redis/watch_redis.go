package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	db, _ := strconv.Atoi(redisGetEnv("REDIS_DB", "0"))
	client := redis.NewClient(&redis.Options{
		Addr:     redisGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: redisGetEnv("REDIS_PASSWORD", ""),
		DB:       db,
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1Snapshot(ctx, client)
	step2Follow(ctx, client)
}

// ─────────────────────────────────────────────────────────────
// Step 1: current state mirror
// ─────────────────────────────────────────────────────────────
func step1Snapshot(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 1: Known bikes ─────────────────────────")

	devices, err := client.ZRange(ctx, "bikes:geo", 0, -1).Result()
	if err != nil {
		log.Fatalf("Failed to read bikes:geo: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("  (none yet)")
		return
	}

	positions, err := client.GeoPos(ctx, "bikes:geo", devices...).Result()
	if err != nil {
		log.Fatalf("Failed to read positions: %v", err)
	}

	for i, device := range devices {
		state, err := client.HGetAll(ctx, fmt.Sprintf("bike:%s:state", device)).Result()
		if err != nil {
			log.Fatalf("Failed to read state for %s: %v", device, err)
		}
		pos := positions[i]
		if pos == nil {
			fmt.Printf("  ✓ %-10s state=%s (no position)\n", device, state["state"])
			continue
		}
		fmt.Printf("  ✓ %-10s state=%-16s lat=%.6f lon=%.6f\n",
			device, state["state"], pos.Latitude, pos.Longitude)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 2: follow live channels until Ctrl+C
// ─────────────────────────────────────────────────────────────
func step2Follow(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: Live telemetry and alerts ───────────")

	sub := client.PSubscribe(ctx, "bike:*:alerts", "bike:*:telemetry")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		log.Fatalf("Subscribe failed: %v", err)
	}
	fmt.Println("  ✓ subscribed to bike:*:alerts, bike:*:telemetry (Ctrl+C to stop)")

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Printf("  %-22s %s\n", msg.Channel, msg.Payload)
		case <-ctx.Done():
			fmt.Println("\n✅ Stopped")
			return
		}
	}
}

func redisGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
