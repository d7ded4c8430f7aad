package logging

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// FormatConsole renders human-readable lines.
	FormatConsole = "console"
	// FormatJSON renders structured JSON lines.
	FormatJSON = "json"

	defaultLevel              = "info"
	unsupportedFormatErrorFmt = "unsupported log format %q (use %s or %s)"
	invalidLevelErrorFormat   = "parse log level %q"
)

// New builds the process logger. Output goes to stderr so that stdout stays
// free for command results.
func New(level string, format string) (*zap.Logger, error) {
	trimmedLevel := strings.TrimSpace(level)
	if trimmedLevel == "" {
		trimmedLevel = defaultLevel
	}
	parsedLevel, parseErr := zapcore.ParseLevel(trimmedLevel)
	if parseErr != nil {
		return nil, errors.Wrapf(parseErr, invalidLevelErrorFormat, level)
	}

	var configuration zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		configuration = zap.NewProductionConfig()
		configuration.Encoding = FormatConsole
		configuration.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		configuration.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		configuration.EncoderConfig.EncodeCaller = nil
		configuration.DisableCaller = true
		configuration.DisableStacktrace = true
		configuration.Sampling = nil
	case FormatJSON:
		configuration = zap.NewProductionConfig()
	default:
		return nil, errors.Newf(unsupportedFormatErrorFmt, format, FormatConsole, FormatJSON)
	}
	configuration.Level = zap.NewAtomicLevelAt(parsedLevel)
	configuration.OutputPaths = []string{"stderr"}
	configuration.ErrorOutputPaths = []string{"stderr"}

	return configuration.Build()
}

// Default returns the console logger used until flags have been parsed.
func Default() *zap.Logger {
	logger, err := New(defaultLevel, FormatConsole)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
