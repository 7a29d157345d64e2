package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	logpkg "github.com/rzbill/relay/pkg/log"
	"gopkg.in/yaml.v3"
)

// Ingestion modes.
const (
	IngestModeSession = "session"
	IngestModeGlobal  = "global"
)

// Backplane kinds.
const (
	BackplaneNone     = "none"
	BackplaneMemory   = "memory"
	BackplaneRedis    = "redis"
	BackplanePostgres = "postgres"
)

// PostgresMaxMessageBytes is the largest message whose base64 bridge
// envelope, with a topic of up to MaxEnvelopeTopicBytes, stays under the
// 7900 byte NOTIFY payload accepted by the postgres backplane.
const (
	PostgresMaxMessageBytes = (7900 - envelopeOverhead) / 4 * 3
	MaxEnvelopeTopicBytes   = 128
	envelopeOverhead        = 128 + MaxEnvelopeTopicBytes
)

// Config is the top-level configuration loaded from file/env/flags.
type Config struct {
	GRPCAddr string `yaml:"grpcAddr" env:"GRPC_ADDR"`
	HTTPAddr string `yaml:"httpAddr" env:"HTTP_ADDR"`

	// MaxConcurrentStreams is the admission capacity.
	MaxConcurrentStreams int `yaml:"maxConcurrentStreams" env:"MAX_CONCURRENT_STREAMS"`
	// MaxMessageBytes bounds a single inbound gRPC frame and HTTP publish body.
	MaxMessageBytes int `yaml:"maxMessageBytes" env:"MAX_MESSAGE_BYTES"`
	// DefaultTopic is where ingested messages are published.
	DefaultTopic string `yaml:"defaultTopic" env:"DEFAULT_TOPIC"`

	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Ingest    IngestConfig    `yaml:"ingest" envPrefix:"INGEST_"`
	Dispatch  DispatchConfig  `yaml:"dispatch" envPrefix:"DISPATCH_"`
	Monitor   MonitorConfig   `yaml:"monitor" envPrefix:"MONITOR_"`
	Backplane BackplaneConfig `yaml:"backplane" envPrefix:"BACKPLANE_"`
	Log       logpkg.Config   `yaml:"log" envPrefix:"LOG_"`
}

// SessionConfig bounds the per-connection inbound buffer.
type SessionConfig struct {
	BufferCapacity int           `yaml:"bufferCapacity" env:"BUFFER_CAPACITY"`
	BufferWait     time.Duration `yaml:"bufferWait" env:"BUFFER_WAIT"`
}

// IngestConfig selects and tunes the ingestion pipeline.
type IngestConfig struct {
	Mode                 string        `yaml:"mode" env:"MODE"`
	Workers              int           `yaml:"workers" env:"WORKERS"`
	GlobalBufferCapacity int           `yaml:"globalBufferCapacity" env:"GLOBAL_BUFFER_CAPACITY"`
	BatchSize            int           `yaml:"batchSize" env:"BATCH_SIZE"`
	BatchWait            time.Duration `yaml:"batchWait" env:"BATCH_WAIT"`
	MaxFaults            int           `yaml:"maxFaults" env:"MAX_FAULTS"`
	FaultBackoff         time.Duration `yaml:"faultBackoff" env:"FAULT_BACKOFF"`
}

// DispatchConfig tunes fan-out to consumers.
type DispatchConfig struct {
	SubscriberBuffer int           `yaml:"subscriberBuffer" env:"SUBSCRIBER_BUFFER"`
	FlushWindow      time.Duration `yaml:"flushWindow" env:"FLUSH_WINDOW"`
	// StreamFanout sends bus traffic back to connected stream clients.
	StreamFanout bool          `yaml:"streamFanout" env:"STREAM_FANOUT"`
	PingInterval time.Duration `yaml:"pingInterval" env:"PING_INTERVAL"`
}

// MonitorConfig controls periodic reporting and the optional history store.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// History persists snapshots under DataDir when enabled.
	History          bool   `yaml:"history" env:"HISTORY"`
	DataDir          string `yaml:"dataDir" env:"DATA_DIR"`
	HistoryRetention int    `yaml:"historyRetention" env:"HISTORY_RETENTION"`
}

// BackplaneConfig selects an optional cross-instance transport.
type BackplaneConfig struct {
	Kind           string `yaml:"kind" env:"KIND"`
	Channel        string `yaml:"channel" env:"CHANNEL"`
	OutboundBuffer int    `yaml:"outboundBuffer" env:"OUTBOUND_BUFFER"`
	RedisAddr      string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword  string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redisDB" env:"REDIS_DB"`
	PostgresDSN    string `yaml:"postgresDSN" env:"POSTGRES_DSN"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		GRPCAddr:             ":9090",
		HTTPAddr:             ":8080",
		MaxConcurrentStreams: 100000,
		MaxMessageBytes:      1 << 20,
		DefaultTopic:         "realtime-messages",
		Session: SessionConfig{
			BufferCapacity: 1000,
			BufferWait:     100 * time.Millisecond,
		},
		Ingest: IngestConfig{
			Mode:                 IngestModeSession,
			Workers:              128,
			GlobalBufferCapacity: 10000,
			BatchSize:            64,
			BatchWait:            10 * time.Millisecond,
			MaxFaults:            5,
			FaultBackoff:         50 * time.Millisecond,
		},
		Dispatch: DispatchConfig{
			SubscriberBuffer: 1024,
			StreamFanout:     true,
			PingInterval:     30 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:         5 * time.Second,
			HistoryRetention: 720,
		},
		Backplane: BackplaneConfig{
			Kind:           BackplaneNone,
			Channel:        "realtime-messages",
			OutboundBuffer: 100000,
			RedisAddr:      "localhost:6379",
		},
		Log: logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML or JSON file on top of Default().
// JSON is parsed by the YAML decoder. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", name, v))
		}
	}
	positive("maxConcurrentStreams", c.MaxConcurrentStreams)
	positive("maxMessageBytes", c.MaxMessageBytes)
	positive("session.bufferCapacity", c.Session.BufferCapacity)
	positive("dispatch.subscriberBuffer", c.Dispatch.SubscriberBuffer)
	if c.Session.BufferWait < 0 {
		errs = append(errs, errors.New("session.bufferWait must be >= 0"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be > 0"))
	}
	if c.DefaultTopic == "" {
		errs = append(errs, errors.New("defaultTopic must not be empty"))
	}
	switch c.Ingest.Mode {
	case IngestModeSession:
	case IngestModeGlobal:
		positive("ingest.workers", c.Ingest.Workers)
		positive("ingest.globalBufferCapacity", c.Ingest.GlobalBufferCapacity)
		positive("ingest.batchSize", c.Ingest.BatchSize)
	default:
		errs = append(errs, fmt.Errorf("ingest.mode must be %q or %q (got %q)", IngestModeSession, IngestModeGlobal, c.Ingest.Mode))
	}
	switch c.Backplane.Kind {
	case "", BackplaneNone, BackplaneMemory:
	case BackplaneRedis:
		if c.Backplane.RedisAddr == "" {
			errs = append(errs, errors.New("backplane.redisAddr is required for redis"))
		}
	case BackplanePostgres:
		if c.Backplane.PostgresDSN == "" {
			errs = append(errs, errors.New("backplane.postgresDSN is required for postgres"))
		}
		if c.MaxMessageBytes > PostgresMaxMessageBytes {
			errs = append(errs, fmt.Errorf("maxMessageBytes must be <= %d with the postgres backplane (got %d)", PostgresMaxMessageBytes, c.MaxMessageBytes))
		}
		if len(c.DefaultTopic) > MaxEnvelopeTopicBytes {
			errs = append(errs, fmt.Errorf("defaultTopic must be <= %d bytes with the postgres backplane", MaxEnvelopeTopicBytes))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backplane.kind %q", c.Backplane.Kind))
	}
	if c.Backplane.Kind != "" && c.Backplane.Kind != BackplaneNone {
		if c.Backplane.Channel == "" {
			errs = append(errs, errors.New("backplane.channel must not be empty"))
		}
		positive("backplane.outboundBuffer", c.Backplane.OutboundBuffer)
	}
	if c.Monitor.History && c.Monitor.HistoryRetention <= 0 {
		errs = append(errs, errors.New("monitor.historyRetention must be > 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
