// Package config loads waypoint configuration from environment variables
// and the optional YAML role and user seed.
//
// Server settings:
//
//	WAYPOINT_HOST="0.0.0.0"
//	WAYPOINT_PORT="8080"
//	WAYPOINT_READ_TIMEOUT="15s"
//	WAYPOINT_SHUTDOWN_TIMEOUT="30s"
//	WAYPOINT_RATE_LIMIT_ENABLED="true"
//
// Modules and sessions:
//
//	WAYPOINT_MODULE_INIT_TIMEOUT="10s"
//	WAYPOINT_SESSION_IDLE_TTL="30m"
//	WAYPOINT_REAPER_SCHEDULE="@every 1m"
//	WAYPOINT_SEED_FILE="/etc/waypoint/seed.yaml"
//
// Audit and data:
//
//	WAYPOINT_AUDIT_MAX_ENTRIES="1000"
//	WAYPOINT_AUDIT_LEVEL="info"  # debug, info, warning, error
//	WAYPOINT_REPORT_CACHE_SIZE="128"
//
// Observability:
//
//	WAYPOINT_LOG_LEVEL="info"
//	WAYPOINT_LOG_FORMAT="json"  # json, text
//	WAYPOINT_METRICS_ENABLED="true"
//	WAYPOINT_OTEL_ENABLED="true"
//	WAYPOINT_OTEL_ENDPOINT="otel-collector:4317"
//
// A seed file looks like:
//
//	roles:
//	  - id: role-support
//	    name: Support
//	    permissions: [read_tickets, read_trips]
//	users:
//	  - id: u9
//	    name: Sue Support
//	    role: role-support
//	    department: agent
package config
