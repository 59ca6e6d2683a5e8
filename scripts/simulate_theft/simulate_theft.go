package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
)

// Lucerne, and a point ~50 m north of it.
const (
	latA = 47.0502
	lonA = 8.3093
	latB = 47.05065
	lonB = 8.3093
)

type step struct {
	label    string
	lat, lon float64
	locked   bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	broker := simGetEnv("LOCAL_BROKER", "tcp://127.0.0.1:1883")
	topic := simGetEnv("SIM_TOPIC", "gateway/pi9/gps")
	device := simGetEnv("FALLBACK_DEVICE_ID", "pi9")

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("simulate-theft")
	opts.SetCleanSession(true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure mosquitto is running on %s", token.Error(), broker)
	}
	defer client.Disconnect(250)
	fmt.Printf("✓ Connected to %s\n", broker)

	steps := []step{
		{"lock at A", latA, lonA, true},
		{"still at A", latA, lonA, true},
		{"moved to B (~50 m)", latB, lonB, true},
		{"unlock", latB, lonB, false},
	}

	fmt.Printf("\n── Publishing to %s ──────────────\n", topic)
	for i, s := range steps {
		if i > 0 {
			time.Sleep(time.Second)
		}

		payload, err := json.Marshal(map[string]any{
			"device":   device,
			"ts":       time.Now().Unix(),
			"fix":      true,
			"lat":      s.lat,
			"long":     s.lon,
			"alt":      440.0,
			"lockmode": s.locked,
		})
		if err != nil {
			log.Fatalf("marshal failed: %v", err)
		}

		t := client.Publish(topic, 0, false, payload)
		t.Wait()
		if err := t.Error(); err != nil {
			log.Fatalf("publish failed: %v", err)
		}
		fmt.Printf("  ✓ %-20s %s\n", s.label, payload)
	}

	fmt.Println("\n✅ Sequence sent. The bridge should have raised one theft alert.")
	fmt.Println("   Note: with the default 10 s cooldown only the first message is forwarded upstream.")
}

func simGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
