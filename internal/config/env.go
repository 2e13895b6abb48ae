package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays FUNNEL_* environment variables onto cfg. Unset or
// malformed values leave the existing setting untouched.
func FromEnv(cfg *Config) {
	envStr("FUNNEL_HTTP_ADDR", &cfg.HTTPAddr)
	envStr("FUNNEL_DATA_DIR", &cfg.DataDir)

	envInt("FUNNEL_QUEUE_CAPACITY", &cfg.Queue.Capacity)
	envInt("FUNNEL_BATCH_MAX_SIZE", &cfg.Batch.MaxSize)
	envDur("FUNNEL_BATCH_MAX_WAIT", &cfg.Batch.MaxWait)

	envInt("FUNNEL_SUBMIT_MAX_ATTEMPTS", &cfg.Submit.MaxAttempts)
	envDur("FUNNEL_SUBMIT_BACKOFF_INITIAL", &cfg.Submit.BackoffInitial)
	envDur("FUNNEL_SUBMIT_BACKOFF_MAX", &cfg.Submit.BackoffMax)
	envFloat("FUNNEL_SUBMIT_BACKOFF_FACTOR", &cfg.Submit.BackoffFactor)
	envFloat("FUNNEL_SUBMIT_BACKOFF_JITTER", &cfg.Submit.BackoffJitter)

	envStr("FUNNEL_SINK_KIND", &cfg.Sink.Kind)
	envStr("FUNNEL_SINK_ENDPOINT", &cfg.Sink.Endpoint)
	envDur("FUNNEL_SINK_TIMEOUT", &cfg.Sink.Timeout)
	envStr("FUNNEL_SINK_TOPIC", &cfg.Sink.Topic)
	if v := os.Getenv("FUNNEL_SINK_BROKERS"); v != "" {
		var brokers []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				brokers = append(brokers, p)
			}
		}
		cfg.Sink.Brokers = brokers
	}

	envDur("FUNNEL_GRACE_WINDOW", &cfg.GraceWindow)
	envStr("FUNNEL_FILTER_EXPR", &cfg.FilterExpr)
	if v := os.Getenv("FUNNEL_JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Journal = b
		}
	}

	envStr("FUNNEL_LOG_LEVEL", &cfg.Log.Level)
	envStr("FUNNEL_LOG_FORMAT", &cfg.Log.Format)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDur(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
