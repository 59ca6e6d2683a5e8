package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Local bus
	LocalBroker   string
	LocalClientID string
	LocalTopics   []string

	// Upstream broker (mutual TLS)
	UpstreamBroker   string
	UpstreamClientID string
	UpstreamCAPath   string
	UpstreamCertPath string
	UpstreamKeyPath  string
	PublishTimeout   time.Duration

	// Routing
	InboundPrefix  string
	OutboundPrefix string
	TopicAliases   map[string]string
	GPSTopics      []string

	// Decisions
	FallbackDeviceID     string
	RateLimitCooldown    time.Duration
	TheftThresholdMeters float64

	// Alert delivery
	WebhookURL     string
	WebhookTimeout time.Duration
	NotifyWorkers  int

	// Pipeline channels
	InboundBufferSize int
	AlertChannelSize  int
	StateChannelSize  int

	// Redis state mirror
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Postgres alert history
	DBEnabled         bool
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBMaxConns        int32
	DBBatchSize       int
	DBFlushIntervalMS int

	// Job poller
	JobAPIURL       string
	PiID            string
	JobPollInterval time.Duration

	MetricsAddr string
	LogLevel    string
}

// Load reads envFile (if it exists) and then the environment.
func Load(envFile string) *Config {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	return &Config{
		LocalBroker:   getEnv("LOCAL_BROKER", "tcp://127.0.0.1:1883"),
		LocalClientID: getEnv("LOCAL_CLIENT_ID", "local-forwarder"),
		LocalTopics:   getEnvList("LOCAL_TOPICS", "gateway/#,gps,bike/light"),

		UpstreamBroker:   getEnv("UPSTREAM_BROKER", "tls://localhost:8883"),
		UpstreamClientID: getEnv("UPSTREAM_CLIENT_ID", "iot_gateway"),
		UpstreamCAPath:   getEnv("UPSTREAM_CA_PATH", "/etc/mosquitto/certs/root-CA.crt"),
		UpstreamCertPath: getEnv("UPSTREAM_CERT_PATH", "/etc/mosquitto/certs/iot_gateway.cert.pem"),
		UpstreamKeyPath:  getEnv("UPSTREAM_KEY_PATH", "/etc/mosquitto/certs/iot_gateway.private.key"),
		PublishTimeout:   getEnvDuration("PUBLISH_TIMEOUT", 5*time.Second),

		InboundPrefix:  getEnv("INBOUND_PREFIX", "gateway/"),
		OutboundPrefix: getEnv("OUTBOUND_PREFIX", "sensors/"),
		TopicAliases:   getEnvMap("TOPIC_ALIASES", "gps=sensors/pi9/gps,bike/light=sensors/light/brightness"),
		GPSTopics:      getEnvList("GPS_TOPICS", "gateway/pi9/gps,gps"),

		FallbackDeviceID:     getEnv("FALLBACK_DEVICE_ID", "pi9"),
		RateLimitCooldown:    getEnvDuration("RATE_LIMIT_COOLDOWN", 10*time.Second),
		TheftThresholdMeters: getEnvFloat("THEFT_THRESHOLD_METERS", 10),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookTimeout: getEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		NotifyWorkers:  getEnvInt("NOTIFY_WORKERS", 2),

		InboundBufferSize: getEnvInt("INBOUND_BUFFER_SIZE", 1024),
		AlertChannelSize:  getEnvInt("ALERT_CHANNEL_SIZE", 64),
		StateChannelSize:  getEnvInt("STATE_CHANNEL_SIZE", 1024),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBEnabled:         getEnvBool("DB_ENABLED", false),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "bike_user"),
		DBPassword:        getEnv("DB_PASSWORD", "bike_password"),
		DBName:            getEnv("DB_NAME", "bike_tracker"),
		DBMaxConns:        int32(getEnvInt("DB_MAX_CONNS", 4)),
		DBBatchSize:       getEnvInt("DB_BATCH_SIZE", 50),
		DBFlushIntervalMS: getEnvInt("DB_FLUSH_INTERVAL_MS", 1000),

		JobAPIURL:       strings.TrimRight(getEnv("JOB_API_URL", ""), "/"),
		PiID:            getEnv("PI_ID", "gateway"),
		JobPollInterval: getEnvDuration("JOB_POLL_INTERVAL", 5*time.Second),

		MetricsAddr: getEnv("METRICS_ADDR", ":9100"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// IsGPSTopic reports whether topic carries GPS readings.
func (c *Config) IsGPSTopic(topic string) bool {
	for _, t := range c.GPSTopics {
		if t == topic {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, s := range strings.Split(getEnv(key, fallback), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnvMap parses "from=to,from=to". Entries without "=" are skipped.
func getEnvMap(key, fallback string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvList(key, fallback) {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			continue
		}
		out[from] = to
	}
	return out
}
