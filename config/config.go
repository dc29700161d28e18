// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"matchbook/infra/logging"
)

type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	WAL      WALConfig      `yaml:"wal"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      logging.Config `yaml:"log"`
}

type EngineConfig struct {
	LevelCapacity int `yaml:"level_capacity"`
	OrderCapacity int `yaml:"order_capacity"`
	SlotCapacity  int `yaml:"slot_capacity"`
	// TickSize is the decimal value of one price tick, e.g. "0.01".
	TickSize string `yaml:"tick_size"`
}

type WALConfig struct {
	Dir             string        `yaml:"dir"`
	SegmentSize     int64         `yaml:"segment_size"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	SyncEveryWrite  bool          `yaml:"sync_every_write"`
}

type OutboxConfig struct {
	Dir string `yaml:"dir"`
}

type SnapshotConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

const (
	DriverSarama  = "sarama"
	DriverKafkaGo = "kafka-go"
	DriverNone    = "none"
)

type KafkaConfig struct {
	Driver     string        `yaml:"driver"`
	Brokers    []string      `yaml:"brokers"`
	Topic      string        `yaml:"topic"`
	Interval   time.Duration `yaml:"interval"`
	MaxRetries uint32        `yaml:"max_retries"`
}

// Default is the configuration used for every field a file leaves out.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			LevelCapacity: 1024,
			OrderCapacity: 1 << 16,
			SlotCapacity:  8,
			TickSize:      "0.01",
		},
		WAL: WALConfig{
			Dir:             "./data/wal_entry",
			SegmentSize:     2 << 20,
			SegmentDuration: time.Minute,
		},
		Outbox:   OutboxConfig{Dir: "./data/wal_exit"},
		Snapshot: SnapshotConfig{Dir: "./data/snapshots", Interval: 30 * time.Second},
		GRPC:     GRPCConfig{Addr: ":50051"},
		Metrics:  MetricsConfig{Addr: ":9090", Namespace: "matchbook"},
		Kafka: KafkaConfig{
			Driver:     DriverNone,
			Topic:      "trades",
			Interval:   250 * time.Millisecond,
			MaxRetries: 5,
		},
		Log: logging.Config{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Engine.LevelCapacity < 0 || c.Engine.OrderCapacity < 0 {
		errs = append(errs, errors.New("engine: capacities must not be negative"))
	}
	if c.Engine.TickSize == "" {
		errs = append(errs, errors.New("engine: tick_size is required"))
	} else if tick, err := decimal.NewFromString(c.Engine.TickSize); err != nil {
		errs = append(errs, fmt.Errorf("engine: tick_size: %w", err))
	} else if !tick.IsPositive() {
		errs = append(errs, fmt.Errorf("engine: tick_size %s must be positive", tick))
	}
	if c.WAL.Dir == "" {
		errs = append(errs, errors.New("wal: dir is required"))
	}
	if c.Outbox.Dir == "" {
		errs = append(errs, errors.New("outbox: dir is required"))
	}
	if c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot: dir is required"))
	}
	if c.GRPC.Addr == "" {
		errs = append(errs, errors.New("grpc: addr is required"))
	}
	switch c.Kafka.Driver {
	case DriverNone:
	case DriverSarama, DriverKafkaGo:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("kafka: driver %q needs brokers", c.Kafka.Driver))
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka: topic is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("kafka: unknown driver %q", c.Kafka.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
