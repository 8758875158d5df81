package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/waypoint/pkg/contextkeys"
)

// Log formats accepted by NewLogger
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LoggerConfig configures the process logger
type LoggerConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger creates the process logger. An empty level means info and an
// empty format means json.
func NewLogger(cfg LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q: want %s or %s", cfg.Format, FormatJSON, FormatText)
	}
	return logger, nil
}

// FromContext returns an entry carrying the request id, actor and trace
// ids found in ctx
func FromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if id := contextkeys.GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := contextkeys.GetUserID(ctx); id != "" {
		fields["user_id"] = id
	}
	if dept := contextkeys.GetDepartment(ctx); dept != "" {
		fields["department"] = dept
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	return logger.WithFields(fields)
}
