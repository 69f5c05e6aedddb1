package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/bgpview/client/internal/broker"
	"github.com/bgpview/client/internal/config"
	"github.com/bgpview/client/internal/db"
	"github.com/bgpview/client/internal/geoconsumer"
	"github.com/bgpview/client/internal/geoip"
	"github.com/bgpview/client/internal/httpapi"
	"github.com/bgpview/client/internal/metrics"
	"github.com/bgpview/client/internal/pipeline"
	"github.com/bgpview/client/internal/tskp"
	"github.com/bgpview/client/internal/view"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runClient()
	case "migrate":
		runMigrate()
	case "import-geoip":
		runImportGeoIP()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpview-client <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run            Connect to the view server and run the consumer pipeline")
	fmt.Println("  migrate        Run database migrations (geoip schema)")
	fmt.Println("  import-geoip   Bulk-load the geoip countries/locations/blocks CSV files")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the migrations directory relative to the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runClient() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpview-client",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		logger.Fatal("failed to build TLS config", zap.Error(err))
	}
	saslMech := cfg.Kafka.BuildSASLMechanism()

	// --- Client broker (C3) ---
	dialer := &broker.KafkaDialer{
		Brokers:    cfg.Kafka.Brokers,
		ReqTopic:   cfg.Kafka.ReqTopic,
		ReplyTopic: cfg.Kafka.ReplyTopic,
		ViewTopic:  cfg.Kafka.ViewTopic,
		ClientID:   cfg.Kafka.ClientID,
		TLS:        tlsCfg,
		SASL:       saslMech,
		Logger:     logger.Named("kafka.dialer"),
	}

	brokerCfg := broker.Config{
		Identity:             cfg.Broker.Identity,
		Interests:            cfg.Broker.Interests,
		Intents:              cfg.Broker.Intents,
		HeartbeatInterval:    cfg.Broker.HeartbeatInterval(),
		HeartbeatLiveness:    cfg.Broker.HeartbeatLiveness,
		ReconnectIntervalMin: cfg.Broker.ReconnectIntervalMin(),
		ReconnectIntervalMax: cfg.Broker.ReconnectIntervalMax(),
		RequestTimeout:       cfg.Broker.RequestTimeout(),
		RequestRetries:       cfg.Broker.RequestRetries,
		MaxOutstandingReq:    cfg.Broker.MaxOutstandingReq,
		ShutdownLinger:       cfg.Broker.ShutdownLinger(),
		MetricPrefix:         cfg.Broker.MetricPrefix,
	}

	brokerMetrics := broker.NewMetrics(cfg.Service.InstanceID)
	brokerMetrics.MustRegister()

	masterIn := make(chan broker.MasterMsg)
	masterOut := make(chan broker.ViewDelivery, 16)

	b := broker.New(brokerCfg, dialer, masterIn, masterOut, logger.Named("broker"), brokerMetrics)

	// --- Geolocation provider (domain stack for C6) ---
	geoProvider := geoip.NewPostgresProvider(pool)

	// --- View pipeline manager (C4) + consumers ---
	fullFeedSet := make(map[view.PeerID]struct{}, len(cfg.FullFeed.PeerIDs))
	for _, id := range cfg.FullFeed.PeerIDs {
		fullFeedSet[view.PeerID(id)] = struct{}{}
	}

	manager := pipeline.NewManager(logger.Named("pipeline"), cfg.Broker.MaskLenCutoff, cfg.Broker.MetricPrefix)

	visibility := pipeline.NewVisibilityConsumer(pipeline.StaticFullFeedPredicate(fullFeedSet))
	if err := manager.Register(visibility); err != nil {
		logger.Fatal("failed to register visibility consumer", zap.Error(err))
	}

	kpGenBackend := tskp.NewPrometheusBackend(prometheus.DefaultRegisterer)
	kpV4Backend := tskp.NewPrometheusBackend(prometheus.DefaultRegisterer)
	geoConsumer := geoconsumer.New(geoProvider, kpGenBackend, kpV4Backend, cfg.Broker.MetricPrefix)
	if err := manager.Register(geoConsumer); err != nil {
		logger.Fatal("failed to register geo-visibility consumer", zap.Error(err))
	}
	defer manager.Close()

	// --- HTTP server ---
	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, pool, b, logger.Named("httpapi"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	// --- Broker run loop ---
	brokerDone := make(chan error, 1)
	go func() { brokerDone <- b.Run(ctx) }()

	// --- View delivery loop: decode each subscribed view off the wire
	// and run it through the consumer chain. ---
	viewsDone := make(chan struct{})
	go func() {
		defer close(viewsDone)
		for delivery := range masterOut {
			start := time.Now()
			v, err := view.DecodeView(delivery.Payload)
			if err != nil {
				logger.Error("failed to decode subscribed view", zap.Error(err))
				metrics.ViewsProcessedTotal.WithLabelValues("decode_error").Inc()
				continue
			}
			if err := manager.ProcessView(uint8(delivery.Interests), v); err != nil {
				logger.Error("consumer chain error", zap.Error(err))
				metrics.ViewsProcessedTotal.WithLabelValues("error").Inc()
			} else {
				metrics.ViewsProcessedTotal.WithLabelValues("ok").Inc()
			}
			v.Clear()
			metrics.ViewProcessingDuration.WithLabelValues().Observe(time.Since(start).Seconds())
		}
	}()

	logger.Info("broker and consumer pipeline started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-brokerDone:
		if err != nil {
			logger.Error("broker exited with error", zap.Error(err))
		} else {
			logger.Info("broker exited")
		}
	}

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	close(masterIn)
	cancel()
	close(masterOut)

	select {
	case <-viewsDone:
		logger.Info("view pipeline drained")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached before pipeline drained")
	}

	logger.Info("bgpview-client stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runImportGeoIP() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	if cfg.GeoIP.CountriesFile == "" || cfg.GeoIP.LocationsFile == "" || cfg.GeoIP.BlocksFile == "" {
		fmt.Fprintln(os.Stderr, "geoip.countries_file, geoip.locations_file and geoip.blocks_file must all be set")
		os.Exit(1)
	}

	logger.Info("importing geoip data",
		zap.String("countries_file", cfg.GeoIP.CountriesFile),
		zap.String("locations_file", cfg.GeoIP.LocationsFile),
		zap.String("blocks_file", cfg.GeoIP.BlocksFile),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := geoip.LoadFiles(ctx, pool, cfg.GeoIP.CountriesFile, cfg.GeoIP.LocationsFile, cfg.GeoIP.BlocksFile); err != nil {
		logger.Fatal("geoip import failed", zap.Error(err))
	}

	logger.Info("geoip import complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
