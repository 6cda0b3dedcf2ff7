package log

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	// LogVerbosityInfo is the verbosity used by default.
	LogVerbosityInfo = 0
	// LogVerbosityDebug enables debug output.
	LogVerbosityDebug = 2
	// LogVerbosityTrace enables everything.
	LogVerbosityTrace = 9

	formatText = "text"
	formatJSON = "json"

	outputStdout = "stdout"
	outputStderr = "stderr"
)

type loggerCtxKey struct{}

// Config represents the configuration settings for a logger.
type Config struct {
	// Verbosity is the level of logging. 0 is info, 2 debug and 9 trace.
	Verbosity int
	// Format is the log format: text or json.
	Format string
	// Output is stderr, stdout or a file path.
	Output string
}

// Configure will configure the standard logger from the supplied config.
func Configure(logConfig *Config) error {
	if logConfig.Verbosity < 0 || logConfig.Verbosity > 10 {
		return invalidVerbosityError{verbosity: logConfig.Verbosity}
	}

	switch {
	case logConfig.Verbosity >= LogVerbosityTrace:
		logrus.SetLevel(logrus.TraceLevel)
	case logConfig.Verbosity >= LogVerbosityDebug:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	switch strings.ToLower(logConfig.Format) {
	case formatJSON:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case formatText, "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return invalidLogFormatError{format: logConfig.Format}
	}

	output, err := openOutput(logConfig.Output)
	if err != nil {
		return err
	}

	logrus.SetOutput(output)

	return nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "":
		return nil, ErrLogOutputRequired
	case outputStderr:
		return os.Stderr, nil
	case outputStdout:
		return os.Stdout, nil
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}

		return file, nil
	}
}

// AddFlagsToCommand will add the logging flags to the supplied command.
func AddFlagsToCommand(cmd *cobra.Command, cfg *Config) {
	cmd.PersistentFlags().IntVarP(&cfg.Verbosity,
		"verbosity",
		"v",
		LogVerbosityInfo,
		"The verbosity level of the logging. The level must be between 0 and 10. 0 is info, 2 is debug and 9 is trace.")

	cmd.PersistentFlags().StringVar(&cfg.Format,
		"log-format",
		formatText,
		"The format of the logs. Options are text or json.")

	cmd.PersistentFlags().StringVar(&cfg.Output,
		"log-output",
		outputStderr,
		"The output for the logs. Options are stderr, stdout or a file path.")
}

// WithLogger is used to attach a logger to a context.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// GetLogger returns the logger from the context, or the standard logger if
// the context carries none.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey{}).(*logrus.Entry); ok {
			return logger
		}
	}

	return logrus.NewEntry(logrus.StandardLogger())
}
