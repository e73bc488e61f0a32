// Package logger builds the Zap logger every KageDB component shares.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, encoding, and destination of the log stream.
type Config struct {
	// Level is the minimum level emitted: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
	// OutputFile is a file path, or "stdout"/"stderr" for the console.
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
}

// New builds a zap.Logger from the configuration. Call it once at
// startup and hand the logger down; components never construct their own.
func New(config Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return nil, fmt.Errorf("unknown log level %q: %w", config.Level, err)
		}
	}

	encoding := "json"
	if strings.EqualFold(config.Format, "console") {
		encoding = "console"
	}

	output := config.OutputFile
	switch strings.ToLower(output) {
	case "":
		output = "stdout"
	case "stdout", "stderr":
		output = strings.ToLower(output)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    map[string]any{"service": "kagedb"},
	}
	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}
