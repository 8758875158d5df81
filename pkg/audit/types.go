package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Level represents the severity of an audit entry
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalText encodes the level by name so JSON output stays readable
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Levels returns all levels from most to least severe
func Levels() []Level {
	return []Level{LevelError, LevelWarn, LevelInfo, LevelDebug}
}

// ParseLevel parses a level name, case-insensitively
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown audit level: %q", s)
	}
}

// logrusLevel converts a Level to the matching logrus level
func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Entry is a single audit log record
type Entry struct {
	Level     Level     `json:"level"`
	Scope     string    `json:"scope"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats summarizes the current contents of the ring buffer
type Stats struct {
	CountsByLevel map[Level]int64 `json:"counts_by_level"`
	TotalEntries  int             `json:"total_entries"`
	Capacity      int             `json:"capacity"`
	Evicted       int64           `json:"evicted"`
	Discarded     int64           `json:"discarded"`
}

// Filter narrows the entries returned by Search
type Filter struct {
	// MinLevel keeps entries at this level or more severe
	MinLevel Level

	// Scope keeps entries with an exactly matching scope when non-empty
	Scope string

	// Since keeps entries at or after this instant when non-zero
	Since time.Time

	// Limit keeps only the most recent N matches when positive
	Limit int
}

// ExportFormat represents the format for exporting audit entries
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// Recorder receives ring buffer activity, typically for metrics
type Recorder interface {
	AuditEntryRecorded(level string)
	AuditEntryEvicted()
}
