package log

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Config declares how a process logger is built.
type Config struct {
	Level  string   `yaml:"level" json:"level" env:"LEVEL"`
	Format string   `yaml:"format" json:"format" env:"FORMAT"`
	Output string   `yaml:"output" json:"output" env:"OUTPUT"`
	Redact []string `yaml:"redact" json:"redact" env:"REDACT" envSeparator:","`
	// SampleInitial and SampleThereafter enable per-message sampling when
	// SampleThereafter > 0.
	SampleInitial    int  `yaml:"sampleInitial" json:"sampleInitial" env:"SAMPLE_INITIAL"`
	SampleThereafter int  `yaml:"sampleThereafter" json:"sampleThereafter" env:"SAMPLE_THEREAFTER"`
	Caller           bool `yaml:"caller" json:"caller" env:"CALLER"`
}

// ParseLevel maps a level name to a Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg. Output is "stderr" (default),
// "stdout", "null" or a file path opened for append.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{ShowCaller: cfg.Caller}
	case "json":
		formatter = &JSONFormatter{ShowCaller: cfg.Caller}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	var out Output
	switch cfg.Output {
	case "", "stderr":
		out = NewConsoleOutput()
	case "stdout":
		out = NewWriterOutput(os.Stdout)
	case "null":
		out = NullOutput{}
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("log: open output: %w", err)
		}
		out = NewWriterOutput(f)
	}

	return NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(out),
		WithRedactions(cfg.Redact...),
		WithSampling(cfg.SampleInitial, cfg.SampleThereafter),
	), nil
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() Logger {
	return NewLogger(WithLevel(ErrorLevel), WithOutput(NullOutput{}))
}

// NewTestLogger writes text entries to w at debug level.
func NewTestLogger(w io.Writer) Logger {
	return NewLogger(WithLevel(DebugLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(w)))
}
