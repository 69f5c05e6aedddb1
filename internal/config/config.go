package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Broker   BrokerConfig   `koanf:"broker"`
	Postgres PostgresConfig `koanf:"postgres"`
	GeoIP    GeoIPConfig    `koanf:"geoip"`
	FullFeed FullFeedConfig `koanf:"full_feed"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type KafkaConfig struct {
	Brokers    []string   `koanf:"brokers"`
	ClientID   string     `koanf:"client_id"`
	TLS        TLSConfig  `koanf:"tls"`
	SASL       SASLConfig `koanf:"sasl"`
	ReqTopic   string     `koanf:"req_topic"`
	ReplyTopic string     `koanf:"reply_topic"`
	ViewTopic  string     `koanf:"view_topic"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// BrokerConfig configures the client broker's (C3) connection lifecycle:
// identity, subscription interests/intents, heartbeat liveness,
// reconnect backoff bounds, retransmission, and rate limiting.
type BrokerConfig struct {
	Identity               string `koanf:"identity"`
	Interests              uint8  `koanf:"interests"`
	Intents                uint8  `koanf:"intents"`
	HeartbeatIntervalMs    int    `koanf:"heartbeat_interval_ms"`
	HeartbeatLiveness      uint8  `koanf:"heartbeat_liveness"`
	ReconnectIntervalMinMs int    `koanf:"reconnect_interval_min_ms"`
	ReconnectIntervalMaxMs int    `koanf:"reconnect_interval_max_ms"`
	RequestTimeoutMs       int    `koanf:"request_timeout_ms"`
	RequestRetries         uint8  `koanf:"request_retries"`
	MaxOutstandingReq      int    `koanf:"max_outstanding_req"`
	ShutdownLingerMs       int    `koanf:"shutdown_linger_ms"`
	MaskLenCutoff          int    `koanf:"mask_len_cutoff"`
	MetricPrefix           string `koanf:"metric_prefix"`
}

func (b BrokerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(b.HeartbeatIntervalMs) * time.Millisecond
}

func (b BrokerConfig) ReconnectIntervalMin() time.Duration {
	return time.Duration(b.ReconnectIntervalMinMs) * time.Millisecond
}

func (b BrokerConfig) ReconnectIntervalMax() time.Duration {
	return time.Duration(b.ReconnectIntervalMaxMs) * time.Millisecond
}

func (b BrokerConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutMs) * time.Millisecond
}

func (b BrokerConfig) ShutdownLinger() time.Duration {
	return time.Duration(b.ShutdownLingerMs) * time.Millisecond
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// GeoIPConfig names the one-time netacq-edge-style flat files imported
// into Postgres by the `bgpview-client import-geoip` subcommand.
type GeoIPConfig struct {
	BlocksFile    string `koanf:"blocks_file"`
	LocationsFile string `koanf:"locations_file"`
	CountriesFile string `koanf:"countries_file"`
}

// FullFeedConfig lists the peer ids considered full-feed sessions. Full-feed
// determination properly belongs to the BGP view container (an external
// collaborator); this is the static, operator-supplied predicate the CLI
// wires into the visibility consumer.
type FullFeedConfig struct {
	PeerIDs []uint32 `koanf:"peer_ids"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPVIEW_CLIENT_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("BGPVIEW_CLIENT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPVIEW_CLIENT_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpview-client-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			ClientID:   "bgpview-client",
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
			MaxConns: 20,
			MinConns: 2,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Kafka.ReqTopic == "" || c.Kafka.ReplyTopic == "" || c.Kafka.ViewTopic == "" {
		return fmt.Errorf("config: kafka.req_topic, kafka.reply_topic and kafka.view_topic are required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Broker.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("config: broker.heartbeat_interval_ms must be > 0 (got %d)", c.Broker.HeartbeatIntervalMs)
	}
	if c.Broker.HeartbeatLiveness == 0 {
		return fmt.Errorf("config: broker.heartbeat_liveness must be > 0")
	}
	if c.Broker.ReconnectIntervalMinMs <= 0 || c.Broker.ReconnectIntervalMaxMs < c.Broker.ReconnectIntervalMinMs {
		return fmt.Errorf("config: broker.reconnect_interval_min_ms/max_ms must satisfy 0 < min <= max")
	}
	if c.Broker.RequestTimeoutMs <= 0 {
		return fmt.Errorf("config: broker.request_timeout_ms must be > 0 (got %d)", c.Broker.RequestTimeoutMs)
	}
	if c.Broker.MaxOutstandingReq <= 0 {
		return fmt.Errorf("config: broker.max_outstanding_req must be > 0 (got %d)", c.Broker.MaxOutstandingReq)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
