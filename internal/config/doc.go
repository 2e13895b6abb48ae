// Package config provides loading and environment overlay for Funnel
// runtime configuration. It exposes a Default() baseline, JSON file
// loading, and a FUNNEL_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/funnel.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
