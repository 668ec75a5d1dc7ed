package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/apihub/internal/coordination"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.MaxSizeMB != 10 {
		t.Errorf("Logging.MaxSizeMB = %d, want 10", cfg.Logging.MaxSizeMB)
	}
	if cfg.Health.WindowSize != 20 {
		t.Errorf("Health.WindowSize = %d, want 20", cfg.Health.WindowSize)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Probe.Concurrency != 4 {
		t.Errorf("Probe.Concurrency = %d, want 4", cfg.Probe.Concurrency)
	}
	if cfg.Telemetry.Namespace != "apihub" {
		t.Errorf("Telemetry.Namespace = %q, want %q", cfg.Telemetry.Namespace, "apihub")
	}
	if cfg.Telemetry.Redis.Enabled {
		t.Error("Telemetry.Redis.Enabled should default to false")
	}
	if cfg.APIs == nil || len(cfg.APIs) != 0 {
		t.Errorf("APIs = %v, want empty non-nil map", cfg.APIs)
	}
}

func TestServerConfig_BaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":9090", "http://localhost:9090"},
		{"127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"hub.internal:80", "http://hub.internal:80"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got := ServerConfig{Addr: tt.addr}.BaseURL()
			if got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggingConfig_Rotation(t *testing.T) {
	rc := LoggingConfig{MaxSizeMB: 7, MaxBackups: 2, Compress: true}.Rotation()
	if rc.MaxSizeMB != 7 || rc.MaxBackups != 2 || !rc.Compress {
		t.Errorf("Rotation() = %+v", rc)
	}
}

func TestAPIConfig_HubConfig(t *testing.T) {
	api := APIConfig{
		RateLimit:               100,
		TimeWindow:              time.Minute,
		CircuitBreakerThreshold: 3,
		Timeout:                 5 * time.Second,
		SuccessThreshold:        1,
		Priority:                2,
		RequestTimeout:          time.Second,
		MaxRetries:              -1,
		ProbeURL:                "http://example.com",
	}
	want := coordination.APIConfig{
		RateLimit:               100,
		TimeWindow:              time.Minute,
		CircuitBreakerThreshold: 3,
		Timeout:                 5 * time.Second,
		SuccessThreshold:        1,
		Priority:                2,
		RequestTimeout:          time.Second,
		MaxRetries:              -1,
	}
	if got := api.HubConfig(); got != want {
		t.Errorf("HubConfig() = %+v, want %+v", got, want)
	}
}

func TestConfig_ProbeIntervalFor(t *testing.T) {
	cfg := Default()
	cfg.APIs["fast"] = APIConfig{ProbeInterval: 5 * time.Second}
	cfg.APIs["plain"] = APIConfig{}

	if got := cfg.ProbeIntervalFor("fast"); got != 5*time.Second {
		t.Errorf("ProbeIntervalFor(fast) = %v, want 5s", got)
	}
	if got := cfg.ProbeIntervalFor("plain"); got != cfg.Probe.Interval {
		t.Errorf("ProbeIntervalFor(plain) = %v, want %v", got, cfg.Probe.Interval)
	}
	if got := cfg.ProbeIntervalFor("missing"); got != cfg.Probe.Interval {
		t.Errorf("ProbeIntervalFor(missing) = %v, want %v", got, cfg.Probe.Interval)
	}
}

func TestConfig_APINames(t *testing.T) {
	cfg := Default()
	cfg.APIs["stripe"] = APIConfig{}
	cfg.APIs["github"] = APIConfig{}
	cfg.APIs["openai"] = APIConfig{}

	got := strings.Join(cfg.APINames(), ",")
	if got != "github,openai,stripe" {
		t.Errorf("APINames() = %q, want sorted names", got)
	}
}

func TestChangedAPIs(t *testing.T) {
	prev := map[string]APIConfig{
		"github": {RateLimit: 5000},
		"stripe": {RateLimit: 100},
		"old":    {RateLimit: 1},
	}
	next := map[string]APIConfig{
		"github": {RateLimit: 5000},
		"stripe": {RateLimit: 200},
		"new":    {RateLimit: 10},
	}

	changed, removed := ChangedAPIs(prev, next)
	if got := strings.Join(changed, ","); got != "new,stripe" {
		t.Errorf("changed = %q, want %q", got, "new,stripe")
	}
	if got := strings.Join(removed, ","); got != "old" {
		t.Errorf("removed = %q, want %q", got, "old")
	}

	changed, removed = ChangedAPIs(next, next)
	if len(changed) != 0 || len(removed) != 0 {
		t.Errorf("identical maps: changed=%v removed=%v, want none", changed, removed)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
server:
  addr: ":8081"
apis:
  github:
    rate_limit: 5000
    time_window: 1h
    circuit_breaker_threshold: 3
    timeout: 45s
    probe_url: https://api.github.com/zen
    probe_interval: 15s
  stripe:
    rate_limit: 100
    time_window: 1s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Server.Addr != ":8081" {
		t.Errorf("Server.Addr = %q, want :8081", cfg.Server.Addr)
	}
	// Unset keys keep their defaults.
	if cfg.Health.WindowSize != 20 {
		t.Errorf("Health.WindowSize = %d, want default 20", cfg.Health.WindowSize)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want default 5s", cfg.Server.ShutdownTimeout)
	}

	gh, ok := cfg.APIs["github"]
	if !ok {
		t.Fatalf("APIs missing github: %v", cfg.APIs)
	}
	want := APIConfig{
		RateLimit:               5000,
		TimeWindow:              time.Hour,
		CircuitBreakerThreshold: 3,
		Timeout:                 45 * time.Second,
		ProbeURL:                "https://api.github.com/zen",
		ProbeInterval:           15 * time.Second,
	}
	if gh != want {
		t.Errorf("APIs[github] = %+v, want %+v", gh, want)
	}
	if cfg.APIs["stripe"].TimeWindow != time.Second {
		t.Errorf("APIs[stripe].TimeWindow = %v, want 1s", cfg.APIs["stripe"].TimeWindow)
	}
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "apis:\n  github:\n    rate_limit: 10\n    time_window: 1m\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APIHUB_APIS_GITHUB_RATE_LIMIT", "25")
	t.Setenv("APIHUB_HEALTH_WINDOW_SIZE", "50")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := cfg.APIs["github"].RateLimit; got != 25 {
		t.Errorf("APIs[github].RateLimit = %d, want 25 from the environment", got)
	}
	if cfg.Health.WindowSize != 50 {
		t.Errorf("Health.WindowSize = %d, want 50 from the environment", cfg.Health.WindowSize)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: loud
apis:
  github:
    rate_limit: -5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("LoadFile() should fail validation")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() on a missing file should fail")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteFile(path, Example()); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# apihub configuration") {
		t.Error("written file should start with the header comment")
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() of written config error = %v", err)
	}
	if cfg.APIs["github"] != Example().APIs["github"] {
		t.Errorf("round-tripped github = %+v, want %+v", cfg.APIs["github"], Example().APIs["github"])
	}
	if cfg.Telemetry.Redis != Default().Telemetry.Redis {
		t.Errorf("round-tripped redis = %+v, want %+v", cfg.Telemetry.Redis, Default().Telemetry.Redis)
	}

	t.Run("refuses to overwrite", func(t *testing.T) {
		if err := WriteFile(path, Default()); err == nil {
			t.Error("WriteFile() over an existing file should fail")
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/apihub"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "apihub")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/apihub/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}
