package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfigLoader_LoadConfig(t *testing.T) {
	// Create a temporary config file
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "ago-backup.yaml")

	configYAML := `
portal:
  url: "https://gis.example.com/portal"
  username: "gis_admin"
  token_expiration: 60
  request_timeout: 30s

search:
  query: 'owner:gis_admin AND type:"Feature Service"'
  max_results: 25

archive:
  root: "` + filepath.ToSlash(filepath.Join(tempDir, "archive")) + `"

audit:
  rotate_size: 1048576
  compression: LZ4

execution:
  workers: 2
  export_timeout: 10m
  poll_interval: 2s
`

	err := os.WriteFile(configPath, []byte(configYAML), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	loader := NewConfigLoader(configPath)
	config, err := loader.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	// Verify loaded values
	if config.Portal.URL != "https://gis.example.com/portal" {
		t.Errorf("Expected portal URL from file, got %s", config.Portal.URL)
	}

	if config.Portal.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", config.Portal.RequestTimeout)
	}

	if config.Search.MaxResults != 25 {
		t.Errorf("Expected max results 25, got %d", config.Search.MaxResults)
	}

	if config.Audit.RotateSize != 1048576 {
		t.Errorf("Expected rotate size 1048576, got %d", config.Audit.RotateSize)
	}

	if config.Execution.ExportTimeout != 10*time.Minute {
		t.Errorf("Expected export timeout 10m, got %v", config.Execution.ExportTimeout)
	}

	// Defaults fill what the file leaves out
	if config.Execution.CleanupTimeout != 2*time.Minute {
		t.Errorf("Expected default cleanup timeout, got %v", config.Execution.CleanupTimeout)
	}

	expectedAudit := filepath.Join(filepath.Join(tempDir, "archive"), "backup_audit.csv")
	if config.Audit.Path != expectedAudit {
		t.Errorf("Expected audit path %s, got %s", expectedAudit, config.Audit.Path)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() on loaded config failed: %v", err)
	}
}

func TestConfigLoader_LoadConfigMissingFile(t *testing.T) {
	loader := NewConfigLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	config, err := loader.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() with missing file failed: %v", err)
	}

	if config.Archive.Root != "./backups" {
		t.Errorf("Expected default archive root, got %s", config.Archive.Root)
	}
}

func TestConfigLoader_EnvironmentAndOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ago-backup.yaml")
	if err := os.WriteFile(configPath, []byte("execution:\n  workers: 2\narchive:\n  root: /from/file\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	t.Setenv("AGO_BACKUP_WORKERS", "6")

	config, err := NewConfigLoader(configPath).
		WithOverride(func(c *BackupSystemConfig) { c.Archive.Root = "/from/flag" }).
		LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Execution.Workers != 6 {
		t.Errorf("Expected environment to override file, got %d workers", config.Execution.Workers)
	}
	if config.Archive.Root != "/from/flag" {
		t.Errorf("Expected override to win, got %s", config.Archive.Root)
	}
	if config.Audit.Path != filepath.Join("/from/flag", "backup_audit.csv") {
		t.Errorf("Expected audit path to follow the overridden root, got %s", config.Audit.Path)
	}
}

func TestConfigLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("portal: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	if _, err := NewConfigLoader(configPath).LoadConfig(); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestConfigLoader_SaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "ago-backup.yaml")
	loader := NewConfigLoader(configPath)

	config := validTestConfig()
	config.Portal.Password = "secret"

	if err := loader.SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig() failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}

	var saved BackupSystemConfig
	if err := yaml.Unmarshal(data, &saved); err != nil {
		t.Fatalf("Saved config is not valid YAML: %v", err)
	}
	if saved.Portal.Password != "" {
		t.Error("Password must not be written to disk")
	}
	if config.Portal.Password != "secret" {
		t.Error("SaveConfig must not modify the caller's config")
	}
	if saved.Execution.Workers != config.Execution.Workers {
		t.Errorf("Expected workers %d, got %d", config.Execution.Workers, saved.Execution.Workers)
	}
}

func TestLoadConfigFromBytes(t *testing.T) {
	config, err := LoadConfigFromBytes([]byte("naming:\n  utc: true\nsearch:\n  include_views: true\n"))
	if err != nil {
		t.Fatalf("LoadConfigFromBytes() failed: %v", err)
	}

	if !config.Naming.UTC {
		t.Error("Expected UTC naming")
	}
	if !config.Search.IncludeViews {
		t.Error("Expected include views")
	}
	if config.Search.Query != DefaultSearchQuery {
		t.Errorf("Expected default query, got %s", config.Search.Query)
	}
}

func TestGenerateDefaultConfigYAML(t *testing.T) {
	data, err := GenerateDefaultConfigYAML()
	if err != nil {
		t.Fatalf("GenerateDefaultConfigYAML() failed: %v", err)
	}

	config, err := LoadConfigFromBytes(data)
	if err != nil {
		t.Fatalf("Generated YAML does not load: %v", err)
	}

	defaults := GenerateDefaultConfig()
	if config.Search.Query != defaults.Search.Query {
		t.Errorf("Sample query %q differs from default %q", config.Search.Query, defaults.Search.Query)
	}
	if config.Execution.Workers != defaults.Execution.Workers {
		t.Errorf("Sample workers %d differs from default %d", config.Execution.Workers, defaults.Execution.Workers)
	}
	if config.Archive.Permissions != 0755 {
		t.Errorf("Expected permissions 0755, got %o", config.Archive.Permissions)
	}
}
