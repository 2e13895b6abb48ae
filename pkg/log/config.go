package log

// Config declaratively describes a logger, typically sourced from environment
// variables or flags.
type Config struct {
	// Level is the minimum level name: debug|info|warn|error.
	Level string
	// Format selects the formatter: text|json.
	Format string
}

// ApplyConfig builds a Logger from a Config. Unset fields fall back to
// info-level text logging on the console.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch cfg.Format {
	case "json", "JSON":
		formatter = &JSONFormatter{}
	case "text", "TEXT", "":
		formatter = &TextFormatter{}
	default:
		return nil, &ParseError{Input: cfg.Format}
	}
	return NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewConsoleOutput()),
	), nil
}
