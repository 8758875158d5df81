package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxEntries is used when Config.MaxEntries is not positive
const DefaultMaxEntries = 1000

// Config configures a Logger
type Config struct {
	// MaxEntries caps the ring buffer
	MaxEntries int

	// MinLevel discards entries less severe than this at append time
	MinLevel Level

	// Mirror, when set, receives every accepted entry
	Mirror *logrus.Logger

	// Recorder, when set, is told about appends and evictions
	Recorder Recorder
}

// DefaultConfig returns a config capped at DefaultMaxEntries, storing INFO and above
func DefaultConfig() Config {
	return Config{
		MaxEntries: DefaultMaxEntries,
		MinLevel:   LevelInfo,
	}
}

// Logger is a leveled, capacity-bounded audit log.
// Once full, each append evicts the oldest entry.
type Logger struct {
	mu       sync.RWMutex
	buf      []Entry
	head     int // index of the oldest entry
	size     int
	minLevel Level
	counts   map[Level]int64

	evicted   int64
	discarded int64

	mirror   *logrus.Logger
	recorder Recorder
	now      func() time.Time
}

// NewLogger creates a new ring-buffer audit logger
func NewLogger(cfg Config) *Logger {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Logger{
		buf:      make([]Entry, cfg.MaxEntries),
		minLevel: cfg.MinLevel,
		counts:   make(map[Level]int64),
		mirror:   cfg.Mirror,
		recorder: cfg.Recorder,
		now:      time.Now,
	}
}

// Log appends an entry unless its level is below the configured minimum.
// It reports whether the entry was stored.
func (l *Logger) Log(level Level, scope, message string) bool {
	if level < l.minLevel {
		l.mu.Lock()
		l.discarded++
		l.mu.Unlock()
		return false
	}

	entry := Entry{
		Level:     level,
		Scope:     scope,
		Message:   message,
		Timestamp: l.now().UTC(),
	}

	l.mu.Lock()
	evicted := l.append(entry)
	l.mu.Unlock()

	if l.recorder != nil {
		if evicted {
			l.recorder.AuditEntryEvicted()
		}
		l.recorder.AuditEntryRecorded(level.String())
	}
	if l.mirror != nil {
		l.mirror.WithField("scope", scope).Log(level.logrusLevel(), message)
	}
	return true
}

// Logf formats a message and appends it
func (l *Logger) Logf(level Level, scope, format string, args ...interface{}) bool {
	if level < l.minLevel {
		return l.Log(level, scope, "")
	}
	return l.Log(level, scope, fmt.Sprintf(format, args...))
}

// Error logs at LevelError
func (l *Logger) Error(scope, message string) { l.Log(LevelError, scope, message) }

// Warn logs at LevelWarn
func (l *Logger) Warn(scope, message string) { l.Log(LevelWarn, scope, message) }

// Info logs at LevelInfo
func (l *Logger) Info(scope, message string) { l.Log(LevelInfo, scope, message) }

// Debug logs at LevelDebug
func (l *Logger) Debug(scope, message string) { l.Log(LevelDebug, scope, message) }

// append stores entry, evicting the oldest when full. Caller holds mu.
func (l *Logger) append(entry Entry) bool {
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.head+l.size)%capacity] = entry
		l.size++
		l.counts[entry.Level]++
		return false
	}

	oldest := l.buf[l.head]
	l.counts[oldest.Level]--
	l.buf[l.head] = entry
	l.head = (l.head + 1) % capacity
	l.counts[entry.Level]++
	l.evicted++
	return true
}

// Entries returns the stored entries in chronological order
func (l *Logger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Search returns the stored entries matching filter, oldest first
func (l *Logger) Search(filter Filter) []Entry {
	entries := l.Entries()

	matched := entries[:0]
	for _, e := range entries {
		if e.Level < filter.MinLevel {
			continue
		}
		if filter.Scope != "" && e.Scope != filter.Scope {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		matched = append(matched, e)
	}

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched
}

// Stats returns counts by level, the number of stored entries and the capacity
func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[Level]int64, len(levelNames))
	for _, level := range Levels() {
		counts[level] = l.counts[level]
	}

	return Stats{
		CountsByLevel: counts,
		TotalEntries:  l.size,
		Capacity:      len(l.buf),
		Evicted:       l.evicted,
		Discarded:     l.discarded,
	}
}

// Capacity returns the maximum number of stored entries
func (l *Logger) Capacity() int {
	return len(l.buf)
}

// MinLevel returns the append-time filter level
func (l *Logger) MinLevel() Level {
	return l.minLevel
}

// Export encodes the stored entries in the specified format
func (l *Logger) Export(format ExportFormat) ([]byte, error) {
	entries := l.Entries()

	switch format {
	case ExportFormatJSON, "":
		return exportJSON(entries)
	case ExportFormatCSV:
		return exportCSV(entries)
	case ExportFormatNDJSON:
		return exportNDJSON(entries)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}
