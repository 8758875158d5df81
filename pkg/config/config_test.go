package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/waypoint/pkg/audit"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Server.RateLimitEnabled)

	assert.Equal(t, 10*time.Second, cfg.Modules.InitTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Modules.IdleTTL)
	assert.Equal(t, "@every 1m", cfg.Modules.ReaperSchedule)
	assert.Empty(t, cfg.Modules.SeedFile)

	assert.Equal(t, 1000, cfg.Audit.MaxEntries)
	assert.Equal(t, audit.LevelInfo, cfg.Audit.MinLevel)
	assert.Equal(t, 128, cfg.Datastore.ReportCacheSize)

	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.Observability.OTelEndpoint)
	assert.Equal(t, "waypoint", cfg.Observability.OTelServiceName)
	assert.True(t, cfg.Observability.OTelInsecure)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("WAYPOINT_PORT", "9000")
	t.Setenv("WAYPOINT_MODULE_INIT_TIMEOUT", "2s")
	t.Setenv("WAYPOINT_SESSION_IDLE_TTL", "5m")
	t.Setenv("WAYPOINT_REAPER_SCHEDULE", "*/5 * * * *")
	t.Setenv("WAYPOINT_AUDIT_MAX_ENTRIES", "50")
	t.Setenv("WAYPOINT_AUDIT_LEVEL", "warning")
	t.Setenv("WAYPOINT_REPORT_CACHE_SIZE", "8")
	t.Setenv("WAYPOINT_LOG_FORMAT", "TEXT")
	t.Setenv("WAYPOINT_METRICS_ENABLED", "0")
	t.Setenv("WAYPOINT_OTEL_ENABLED", "true")
	t.Setenv("WAYPOINT_SEED_FILE", "/etc/waypoint/seed.yaml")
	t.Setenv("WAYPOINT_RATE_LIMIT_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.False(t, cfg.Server.RateLimitEnabled)
	assert.Equal(t, 2*time.Second, cfg.Modules.InitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Modules.IdleTTL)
	assert.Equal(t, "*/5 * * * *", cfg.Modules.ReaperSchedule)
	assert.Equal(t, "/etc/waypoint/seed.yaml", cfg.Modules.SeedFile)
	assert.Equal(t, 50, cfg.Audit.MaxEntries)
	assert.Equal(t, audit.LevelWarn, cfg.Audit.MinLevel)
	assert.Equal(t, 8, cfg.Datastore.ReportCacheSize)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.False(t, cfg.Observability.MetricsEnabled)

	otelCfg := cfg.Observability.OTel()
	assert.True(t, otelCfg.Enabled)
	assert.Equal(t, "waypoint", otelCfg.ServiceName)
	assert.Equal(t, "text", cfg.Observability.Logger().Format)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "audit level", env: map[string]string{"WAYPOINT_AUDIT_LEVEL": "loud"}, wantErr: "WAYPOINT_AUDIT_LEVEL"},
		{name: "port", env: map[string]string{"WAYPOINT_PORT": "http"}, wantErr: "server port must be numeric"},
		{name: "audit capacity", env: map[string]string{"WAYPOINT_AUDIT_MAX_ENTRIES": "0"}, wantErr: "audit max entries"},
		{name: "cache size", env: map[string]string{"WAYPOINT_REPORT_CACHE_SIZE": "-1"}, wantErr: "report cache size"},
		{name: "init timeout", env: map[string]string{"WAYPOINT_MODULE_INIT_TIMEOUT": "0s"}, wantErr: "module init timeout"},
		{name: "reaper schedule", env: map[string]string{"WAYPOINT_REAPER_SCHEDULE": "whenever"}, wantErr: "invalid reaper schedule"},
		{name: "log format", env: map[string]string{"WAYPOINT_LOG_FORMAT": "xml"}, wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_OTelRequiresEndpoint(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.Observability.OTelEnabled = true
	cfg.Observability.OTelEndpoint = ""
	assert.ErrorContains(t, cfg.Validate(), "endpoint is required")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("WAYPOINT_TEST_INT", "nope")
	t.Setenv("WAYPOINT_TEST_DURATION", "soon")
	t.Setenv("WAYPOINT_TEST_BOOL", "TRUE")

	assert.Equal(t, 7, getEnvInt("WAYPOINT_TEST_INT", 7))
	assert.Equal(t, time.Minute, getEnvDuration("WAYPOINT_TEST_DURATION", time.Minute))
	assert.True(t, getEnvBool("WAYPOINT_TEST_BOOL", false))
	assert.Equal(t, "fallback", getEnv("WAYPOINT_TEST_UNSET", "fallback"))
}

func TestLoadSeed_BuiltIn(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	assert.Equal(t, rbac.DefaultSeed(), seed)
}

func TestLoadSeed_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	doc := `
roles:
  - id: role-support
    name: Support
    description: Read-only help desk
    permissions: [read_tickets, read_trips]
users:
  - id: u9
    name: Sue Support
    email: sue@waypoint.local
    role: role-support
    department: agent
    status: active
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Roles, 1)
	require.Len(t, seed.Users, 1)
	assert.Equal(t, "role-support", seed.Roles[0].ID)
	assert.Equal(t, []string{"read_tickets", "read_trips"}, seed.Roles[0].Permissions)
	assert.Equal(t, rbac.DepartmentAgent, seed.Users[0].Department)
	assert.Equal(t, rbac.StatusActive, seed.Users[0].Status)
	assert.Equal(t, "role-support", seed.Users[0].Role)
}

func TestLoadSeed_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSeed(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read seed file")

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "empty", doc: "", wantErr: "seed is empty"},
		{name: "no entries", doc: "roles: []\n", wantErr: "no roles and no users"},
		{name: "unknown key", doc: "roles:\n  - id: r1\n    name: R\n    perms: [read_trips]\n", wantErr: "failed to parse seed"},
		{name: "malformed", doc: "roles: [", wantErr: "failed to parse seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadSeed_AppliesToService(t *testing.T) {
	seed, err := ParseSeed([]byte(`
roles:
  - id: role-support
    name: Support
    permissions: [read_tickets]
users:
  - id: u9
    name: Sue Support
    role: role-support
    department: agent
`))
	require.NoError(t, err)

	svc := rbac.NewService(rbac.ServiceConfig{})
	require.NoError(t, svc.ApplySeed(seed))

	assert.True(t, svc.HasPermission("u9", rbac.PermReadTickets))
	assert.False(t, svc.HasPermission("u9", rbac.PermWriteTickets))
}
