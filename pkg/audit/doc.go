// Package audit provides the in-process audit trail for waypoint.
//
// # Overview
//
// Logger is a leveled ring buffer. It is fed by the event bus (every
// publication and every failing subscriber) and by modules directly (reads,
// initialization outcomes, denied invocations).
//
// # Capacity and Filtering
//
// The buffer holds at most Config.MaxEntries entries. Once full, each append
// evicts the oldest entry, so the newest entry is never dropped. Entries less
// severe than Config.MinLevel are discarded when appended, not when read:
//
//	logger := audit.NewLogger(audit.Config{MaxEntries: 500, MinLevel: audit.LevelInfo})
//	logger.Log(audit.LevelDebug, "modules", "dropped")  // returns false
//	logger.Log(audit.LevelWarn, "events", "kept")       // returns true
//
// # Export
//
// Stored entries can be exported as JSON, NDJSON or CSV:
//
//	data, err := logger.Export(audit.ExportFormatCSV)
//
// # Related Packages
//
//   - pkg/events: publishes into the audit trail
//   - pkg/modules: records module lifecycle and reads
package audit
