package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the WebSeal service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Capture   CaptureConfig
	Render    RenderConfig
	Timestamp TimestampConfig
	Evidence  EvidenceConfig
	Replica   ReplicaConfig
	Kafka     KafkaConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"webseal-capture"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"180s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type CaptureConfig struct {
	MaxRedirects int           `env:"CAPTURE_MAX_REDIRECTS" envDefault:"10"`
	Timeout      time.Duration `env:"CAPTURE_TIMEOUT" envDefault:"30s"`
	UserAgent    string        `env:"CAPTURE_USER_AGENT" envDefault:"Mozilla/5.0 (compatible; WebSeal/1.0)"`
}

// RenderConfig points at the browser-rendering sidecar. An empty endpoint
// disables rendered artifacts; captures then carry the HTTP fetch only.
type RenderConfig struct {
	Endpoint       string        `env:"RENDER_ENDPOINT"`
	Timeout        time.Duration `env:"RENDER_TIMEOUT" envDefault:"60s"`
	ViewportWidth  int           `env:"RENDER_VIEWPORT_WIDTH" envDefault:"1280"`
	ViewportHeight int           `env:"RENDER_VIEWPORT_HEIGHT" envDefault:"800"`
	RecordVideo    bool          `env:"RENDER_RECORD_VIDEO" envDefault:"false"`
}

type TimestampConfig struct {
	Enabled   bool          `env:"TIMESTAMP_ENABLED" envDefault:"true"`
	Calendars []string      `env:"TIMESTAMP_CALENDARS" envSeparator:"," envDefault:"https://a.pool.opentimestamps.org,https://b.pool.opentimestamps.org,https://a.pool.eternitywall.com"`
	Timeout   time.Duration `env:"TIMESTAMP_TIMEOUT" envDefault:"30s"`
}

// EvidenceConfig locates the local evidence root. Each acquisition owns one
// directory beneath it.
type EvidenceConfig struct {
	Root string `env:"EVIDENCE_ROOT" envDefault:"./evidence"`
}

// ReplicaConfig configures optional replication of sealed bundles to an
// object store. Replication is disabled when the endpoint is empty.
type ReplicaConfig struct {
	Provider  string `env:"REPLICA_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"REPLICA_ENDPOINT"`
	Region    string `env:"REPLICA_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"REPLICA_BUCKET" envDefault:"webseal-evidence"`
	AccessKey string `env:"REPLICA_ACCESS_KEY"`
	SecretKey string `env:"REPLICA_SECRET_KEY"`
	UseSSL    bool   `env:"REPLICA_USE_SSL" envDefault:"false"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EvidenceTopic    string        `env:"KAFKA_EVIDENCE_TOPIC" envDefault:"webseal.evidence"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=webseal"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
