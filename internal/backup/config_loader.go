package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader handles loading and parsing backup configuration
type ConfigLoader struct {
	configPath string
	overrides  []func(*BackupSystemConfig)
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// WithOverride registers a function applied after the file and environment
// and before defaults, typically carrying command-line flags.
func (cl *ConfigLoader) WithOverride(fn func(*BackupSystemConfig)) *ConfigLoader {
	cl.overrides = append(cl.overrides, fn)
	return cl
}

// LoadConfig loads the configuration from file, environment and overrides,
// then fills defaults. Defaults come last so derived values such as the audit
// path follow an overridden archive root. Only the local sections are
// validated; callers talking to the portal call Validate as well.
func (cl *ConfigLoader) LoadConfig() (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.LoadFromEnvironment()

	for _, fn := range cl.overrides {
		fn(config)
	}

	config.SetDefaults()

	if err := config.ValidateLocal(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file. A missing file is not an error.
func (cl *ConfigLoader) loadFromFile(config *BackupSystemConfig) error {
	data, err := os.ReadFile(cl.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file. The password is never written.
func (cl *ConfigLoader) SaveConfig(config *BackupSystemConfig) error {
	if err := config.ValidateLocal(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cl.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	redacted := *config
	redacted.Portal.Password = ""

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(cl.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.LoadFromEnvironment()
	config.SetDefaults()

	if err := config.ValidateLocal(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// GenerateDefaultConfig returns a configuration with every default filled in
func GenerateDefaultConfig() *BackupSystemConfig {
	config := &BackupSystemConfig{}
	config.SetDefaults()
	return config
}

// GenerateDefaultConfigYAML returns a commented sample configuration file
func GenerateDefaultConfigYAML() ([]byte, error) {
	configYAML := `# ago-backup configuration
# Values here are overridden by AGO_BACKUP_* environment variables and flags.

portal:
  # Portal root, e.g. https://www.arcgis.com or https://gis.example.com/portal
  url: "https://www.arcgis.com"
  username: ""
  # Prefer AGO_BACKUP_PASSWORD or the interactive prompt over storing it here
  # password: ""
  referer: "ago-backup"
  # Token lifetime in minutes
  token_expiration: 120
  request_timeout: 60s
  page_size: 100

search:
  query: 'type:"Feature Service" AND NOT typekeywords:"View Service"'
  sort_field: modified
  sort_order: desc
  max_results: 2000
  # View services reference another item's data and are skipped by default
  include_views: false

archive:
  root: "./backups"
  extension: zip
  permissions: 0755
  # Skip zip and digest checks of downloaded exports
  skip_verify: false

audit:
  # Defaults to <archive.root>/backup_audit.csv
  # path: "./backups/backup_audit.csv"
  # Rotate the audit log once it reaches this many bytes (0 = never)
  rotate_size: 0
  # Compression for rotated segments: NONE, GZIP, LZ4, ZSTD
  compression: GZIP
  compression_level: 0
  # JSON journal of every transaction state change
  # journal_file: "./backups/journal.log"

execution:
  workers: 4
  export_format: "File Geodatabase"
  export_timeout: 30m
  download_timeout: 30m
  cleanup_timeout: 2m
  poll_interval: 5s
  # Leave export items on the portal after download
  keep_remote_exports: false

naming:
  # Render identifier timestamps in UTC instead of local time
  utc: false
`

	return []byte(configYAML), nil
}
