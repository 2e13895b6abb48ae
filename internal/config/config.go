package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration is a time.Duration that unmarshals from JSON strings such as
// "250ms" or "10s" (bare numbers are nanoseconds).
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x))
		return nil
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", x, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("config: bad duration value %v", v)
	}
}

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string `json:"httpAddr"`
	DataDir  string `json:"dataDir"`

	Queue  QueueConfig  `json:"queue"`
	Batch  BatchConfig  `json:"batch"`
	Submit SubmitConfig `json:"submit"`
	Sink   SinkConfig   `json:"sink"`

	// GraceWindow bounds the shutdown flush.
	GraceWindow Duration `json:"graceWindow"`
	// FilterExpr is an optional CEL expression applied at the gate.
	FilterExpr string `json:"filterExpr"`
	// Journal persists lost-event reports under DataDir when true.
	Journal bool `json:"journal"`

	Log LogConfig `json:"log"`
}

// QueueConfig bounds the in-memory queue.
type QueueConfig struct {
	Capacity int `json:"capacity"`
}

// BatchConfig controls batch assembly triggers.
type BatchConfig struct {
	MaxSize int      `json:"maxSize"`
	MaxWait Duration `json:"maxWait"`
}

// SubmitConfig bounds the retry policy.
type SubmitConfig struct {
	MaxAttempts    int      `json:"maxAttempts"`
	BackoffInitial Duration `json:"backoffInitial"`
	BackoffMax     Duration `json:"backoffMax"`
	BackoffFactor  float64  `json:"backoffFactor"`
	BackoffJitter  float64  `json:"backoffJitter"`
}

// SinkConfig selects and configures the downstream sink.
type SinkConfig struct {
	// Kind is one of "http", "kafka", "devnull".
	Kind string `json:"kind"`
	// Endpoint is the HTTP sink's target URL.
	Endpoint string `json:"endpoint"`
	// Timeout bounds a single HTTP send.
	Timeout Duration `json:"timeout"`
	// Brokers and Topic configure the Kafka sink.
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		DataDir:  DefaultDataDir(),
		Queue:    QueueConfig{Capacity: 1024},
		Batch: BatchConfig{
			MaxSize: 100,
			MaxWait: Duration(time.Second),
		},
		Submit: SubmitConfig{
			MaxAttempts:    5,
			BackoffInitial: Duration(100 * time.Millisecond),
			BackoffMax:     Duration(5 * time.Second),
			BackoffFactor:  2,
			BackoffJitter:  0.2,
		},
		Sink: SinkConfig{
			Kind:    "devnull",
			Timeout: Duration(10 * time.Second),
		},
		GraceWindow: Duration(10 * time.Second),
		Journal:     true,
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file over the defaults. An empty
// path returns the defaults untouched.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("config: queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Batch.MaxSize <= 0 {
		return fmt.Errorf("config: batch.maxSize must be positive, got %d", c.Batch.MaxSize)
	}
	if c.Batch.MaxWait <= 0 {
		return fmt.Errorf("config: batch.maxWait must be positive, got %v", c.Batch.MaxWait.Std())
	}
	if c.Submit.MaxAttempts < 1 {
		return fmt.Errorf("config: submit.maxAttempts must be at least 1, got %d", c.Submit.MaxAttempts)
	}
	if c.GraceWindow <= 0 {
		return fmt.Errorf("config: graceWindow must be positive, got %v", c.GraceWindow.Std())
	}
	switch c.Sink.Kind {
	case "http":
		if c.Sink.Endpoint == "" {
			return fmt.Errorf("config: sink.endpoint required for the http sink")
		}
	case "kafka":
		if len(c.Sink.Brokers) == 0 || c.Sink.Topic == "" {
			return fmt.Errorf("config: sink.brokers and sink.topic required for the kafka sink")
		}
	case "devnull":
	default:
		return fmt.Errorf("config: unknown sink.kind %q", c.Sink.Kind)
	}
	return nil
}
