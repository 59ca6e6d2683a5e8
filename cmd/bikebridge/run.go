package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gurkepunktli/hslu-iot/internal/bridge"
	"github.com/gurkepunktli/hslu-iot/internal/config"
	"github.com/gurkepunktli/hslu-iot/internal/jobs"
	"github.com/gurkepunktli/hslu-iot/internal/logging"
	"github.com/gurkepunktli/hslu-iot/internal/notify"
	"github.com/gurkepunktli/hslu-iot/internal/pipeline"
	"github.com/gurkepunktli/hslu-iot/internal/ratelimit"
	"github.com/gurkepunktli/hslu-iot/internal/router"
	"github.com/gurkepunktli/hslu-iot/internal/store"
	"github.com/gurkepunktli/hslu-iot/internal/theft"
	httptransport "github.com/gurkepunktli/hslu-iot/internal/transport/http"
	"github.com/gurkepunktli/hslu-iot/internal/transport/mqtt"
)

const bridgeStatusJob = "bridge_status"

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(envFile)
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Workers outlive ctx long enough to drain queued messages and alerts.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var tlsConfig *tls.Config
	if usesTLS(cfg.UpstreamBroker) {
		var err error
		tlsConfig, err = mqtt.NewTLSConfig(cfg.UpstreamCAPath, cfg.UpstreamCertPath, cfg.UpstreamKeyPath)
		if err != nil {
			return fmt.Errorf("upstream tls: %w", err)
		}
	}

	upstream := mqtt.NewPublisher(cfg.UpstreamBroker, cfg.UpstreamClientID, tlsConfig, cfg.PublishTimeout, logger)
	if err := upstream.Connect(); err != nil {
		return err
	}
	defer upstream.Close()
	logger.Info("connected upstream", "broker", cfg.UpstreamBroker)

	var redisStore *store.RedisStore
	if cfg.RedisEnabled {
		rs, err := store.NewRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer rs.Close()
		redisStore = rs
		logger.Info("redis state mirror enabled", "addr", cfg.RedisAddr)
	}

	var pgStore *store.PostgresStore
	if cfg.DBEnabled {
		pg, err := store.NewPostgresStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer pg.Close()
		pgStore = pg
		logger.Info("alert history enabled", "host", cfg.DBHost, "db", cfg.DBName)
	}

	dispatcher := pipeline.NewAlertDispatcher(cfg.AlertChannelSize, pgStore != nil)
	detector := theft.NewDetector(cfg.TheftThresholdMeters, dispatcher, logger)

	var alertWorkers sync.WaitGroup
	startAlertWorkers(workerCtx, &alertWorkers, cfg, dispatcher, redisStore, pgStore, logger)

	var stateSink bridge.StateSink
	var stateDone sync.WaitGroup
	if redisStore != nil {
		sw := pipeline.NewStateWriter(cfg.StateChannelSize, redisStore, logger)
		stateSink = sw
		stateDone.Add(1)
		go func() {
			defer stateDone.Done()
			sw.Run(workerCtx)
		}()
	}

	b := bridge.NewBridge(
		cfg.GPSTopics,
		cfg.FallbackDeviceID,
		router.NewRouter(cfg.TopicAliases, cfg.InboundPrefix, cfg.OutboundPrefix, logger),
		ratelimit.NewLimiter(cfg.RateLimitCooldown),
		detector,
		upstream,
		stateSink,
		logger,
	)

	local := mqtt.NewSubscriber(cfg.LocalBroker, cfg.LocalClientID, cfg.LocalTopics, cfg.InboundBufferSize, logger)
	if err := local.Connect(); err != nil {
		return err
	}
	logger.Info("connected to local bus", "broker", cfg.LocalBroker, "topics", cfg.LocalTopics)

	var bridgeDone sync.WaitGroup
	bridgeDone.Add(1)
	go func() {
		defer bridgeDone.Done()
		b.Run(workerCtx, local.Messages())
	}()

	var aux sync.WaitGroup
	if cfg.MetricsAddr != "" {
		aux.Add(1)
		go func() {
			defer aux.Done()
			handler := httptransport.NewHandler(upstream, logger)
			if err := httptransport.Serve(ctx, cfg.MetricsAddr, handler, logger); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if cfg.JobAPIURL != "" {
		runner := jobs.NewRunner(jobs.NewClient(cfg.JobAPIURL, cfg.PiID), cfg.JobPollInterval, logger)
		runner.Register(bridgeStatusJob, bridgeStatus(detector))
		aux.Add(1)
		go func() {
			defer aux.Done()
			runner.Run(ctx)
		}()
	}

	logger.Info("bridge running", "version", version)
	<-ctx.Done()
	logger.Info("shutting down")

	local.Close()
	bridgeDone.Wait()
	dispatcher.Close()
	alertWorkers.Wait()
	cancelWorkers()
	stateDone.Wait()
	aux.Wait()

	logger.Info("bridge stopped")
	return nil
}

// startAlertWorkers runs the alert notifier pool and, with Postgres,
// the alert recorder. They exit once the dispatcher queues are closed.
func startAlertWorkers(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	dispatcher *pipeline.AlertDispatcher,
	redisStore *store.RedisStore,
	pgStore *store.PostgresStore,
	logger *slog.Logger,
) {
	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.WebhookURL != "" {
		sink = notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout)
	}

	var alertPub pipeline.AlertPublisher
	if redisStore != nil {
		alertPub = redisStore
	}

	n := cfg.NotifyWorkers
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		notifier := pipeline.NewAlertNotifier(dispatcher.NotifyChan, sink, alertPub, cfg.WebhookTimeout, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Run(ctx)
		}()
	}

	if pgStore != nil {
		recorder := pipeline.NewAlertRecorder(dispatcher.RecordChan, pgStore, cfg.DBBatchSize, cfg.DBFlushIntervalMS, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx)
		}()
	}
}

func bridgeStatus(d *theft.Detector) jobs.Handler {
	return func(context.Context, map[string]any) (string, error) {
		out, err := json.Marshal(d.Snapshots())
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func usesTLS(broker string) bool {
	for _, scheme := range []string{"tls://", "ssl://", "mqtts://", "tcps://"} {
		if strings.HasPrefix(broker, scheme) {
			return true
		}
	}
	return false
}
