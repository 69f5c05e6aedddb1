package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			Brokers:    []string{"localhost:9092"},
			ReqTopic:   "bgpview.requests",
			ReplyTopic: "bgpview.replies",
			ViewTopic:  "bgpview.views",
		},
		Broker: BrokerConfig{
			HeartbeatIntervalMs:    2500,
			HeartbeatLiveness:      3,
			ReconnectIntervalMinMs: 1000,
			ReconnectIntervalMaxMs: 30000,
			RequestTimeoutMs:       2500,
			RequestRetries:         3,
			MaxOutstandingReq:      64,
			ShutdownLingerMs:       5000,
			MaskLenCutoff:          6,
			MetricPrefix:           "bgpview_client",
		},
		Postgres: PostgresConfig{
			DSN:      "postgres://localhost/test",
			MaxConns: 10,
			MinConns: 2,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty brokers")
	}
}

func TestValidate_NoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestValidate_MissingTopics(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.ViewTopic = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty view_topic")
	}
}

func TestValidate_HeartbeatIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.HeartbeatIntervalMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat_interval_ms = 0")
	}
}

func TestValidate_HeartbeatLivenessZero(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.HeartbeatLiveness = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat_liveness = 0")
	}
}

func TestValidate_ReconnectIntervalMaxBelowMin(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.ReconnectIntervalMinMs = 5000
	cfg.Broker.ReconnectIntervalMaxMs = 1000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for reconnect_interval_max_ms < min_ms")
	}
}

func TestValidate_RequestTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.RequestTimeoutMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for request_timeout_ms = 0")
	}
}

func TestValidate_MaxOutstandingReqZero(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.MaxOutstandingReq = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_outstanding_req = 0")
	}
}

func TestValidate_PostgresMaxConnsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.MaxConns = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres.max_conns = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestBrokerConfig_DurationHelpers(t *testing.T) {
	cfg := validConfig()
	if got, want := cfg.Broker.HeartbeatInterval().Milliseconds(), int64(2500); got != want {
		t.Errorf("HeartbeatInterval() = %dms, want %dms", got, want)
	}
	if got, want := cfg.Broker.ReconnectIntervalMin().Milliseconds(), int64(1000); got != want {
		t.Errorf("ReconnectIntervalMin() = %dms, want %dms", got, want)
	}
	if got, want := cfg.Broker.ReconnectIntervalMax().Milliseconds(), int64(30000); got != want {
		t.Errorf("ReconnectIntervalMax() = %dms, want %dms", got, want)
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
kafka:
  brokers:
    - "localhost:9092"
  req_topic: "bgpview.requests"
  reply_topic: "bgpview.replies"
  view_topic: "bgpview.views"
postgres:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_CLIENT_POSTGRES__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_CLIENT_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvEmptyDSNFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_CLIENT_POSTGRES__DSN", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty postgres DSN via env")
	}
}
