package backup

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ago-backup/internal/compression"
)

// Defaults carried over from the original backup script
const (
	DefaultSearchQuery  = `type:"Feature Service" AND NOT typekeywords:"View Service"`
	DefaultSortField    = "modified"
	DefaultSortOrder    = "desc"
	DefaultMaxResults   = 2000
	DefaultExportFormat = "File Geodatabase"
)

// BackupSystemConfig represents the complete backup system configuration
type BackupSystemConfig struct {
	Portal    PortalConfig    `yaml:"portal"`
	Search    SearchConfig    `yaml:"search"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Audit     AuditConfig     `yaml:"audit"`
	Execution ExecutionConfig `yaml:"execution"`
	Naming    NamingConfig    `yaml:"naming"`
}

// PortalConfig locates and authenticates against the portal
type PortalConfig struct {
	URL             string        `yaml:"url"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password,omitempty"`
	Referer         string        `yaml:"referer"`
	TokenExpiration int           `yaml:"token_expiration"` // minutes
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PageSize        int           `yaml:"page_size"`
}

// SearchConfig selects the candidate items
type SearchConfig struct {
	Query        string `yaml:"query"`
	SortField    string `yaml:"sort_field"`
	SortOrder    string `yaml:"sort_order"`
	MaxResults   int    `yaml:"max_results"`
	IncludeViews bool   `yaml:"include_views"`
}

// ArchiveConfig defines the local archive root
type ArchiveConfig struct {
	Root        string      `yaml:"root"`
	Extension   string      `yaml:"extension"`
	Permissions os.FileMode `yaml:"permissions"`
	SkipVerify  bool        `yaml:"skip_verify"`
}

// AuditConfig defines the audit log and the run journal
type AuditConfig struct {
	Path             string `yaml:"path"`
	RotateSize       int64  `yaml:"rotate_size"` // bytes, 0 disables rotation
	Compression      string `yaml:"compression"` // NONE, GZIP, LZ4, ZSTD
	CompressionLevel int    `yaml:"compression_level"`
	JournalFile      string `yaml:"journal_file,omitempty"`
}

// ExecutionConfig bounds concurrency and every remote call
type ExecutionConfig struct {
	Workers           int           `yaml:"workers"`
	ExportFormat      string        `yaml:"export_format"`
	ExportTimeout     time.Duration `yaml:"export_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout"`
	CleanupTimeout    time.Duration `yaml:"cleanup_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	KeepRemoteExports bool          `yaml:"keep_remote_exports"`
}

// NamingConfig controls identifier rendering
type NamingConfig struct {
	UTC bool `yaml:"utc"`
}

// Validate validates the BackupSystemConfig
func (bsc *BackupSystemConfig) Validate() error {
	var errors ValidationErrors

	errors.merge("portal", bsc.Portal.Validate())
	errors.merge("search", bsc.Search.Validate())
	errors.merge("archive", bsc.Archive.Validate())
	errors.merge("audit", bsc.Audit.Validate())
	errors.merge("execution", bsc.Execution.Validate())

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// ValidateLocal validates only the sections needed without a portal
// connection, for commands that read the archive or audit log.
func (bsc *BackupSystemConfig) ValidateLocal() error {
	var errors ValidationErrors

	errors.merge("archive", bsc.Archive.Validate())
	errors.merge("audit", bsc.Audit.Validate())

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for the backup system configuration
func (bsc *BackupSystemConfig) SetDefaults() {
	bsc.Portal.SetDefaults()
	bsc.Search.SetDefaults()
	bsc.Archive.SetDefaults()
	bsc.Audit.SetDefaults(bsc.Archive.Root)
	bsc.Execution.SetDefaults()
}

// LoadFromEnvironment loads configuration values from environment variables
func (bsc *BackupSystemConfig) LoadFromEnvironment() {
	bsc.Portal.LoadFromEnvironment()
	bsc.Search.LoadFromEnvironment()
	bsc.Archive.LoadFromEnvironment()
	bsc.Audit.LoadFromEnvironment()
	bsc.Execution.LoadFromEnvironment()
	bsc.Naming.LoadFromEnvironment()
}

// NameCodec returns the identifier codec the configuration describes
func (bsc *BackupSystemConfig) NameCodec() NameCodec {
	return NewNameCodec(bsc.Naming.Location(), bsc.Archive.Extension)
}

// Validate validates the PortalConfig
func (pc *PortalConfig) Validate() error {
	var errors ValidationErrors

	if pc.URL == "" {
		errors.Add("portal.url", "portal URL is required", nil)
	} else if u, err := url.Parse(pc.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors.Add("portal.url", "portal URL must be an absolute http(s) URL", pc.URL)
	}

	if pc.Username == "" {
		errors.Add("portal.username", "username is required", nil)
	}

	if pc.TokenExpiration < 1 {
		errors.Add("portal.token_expiration", "token expiration must be at least one minute", pc.TokenExpiration)
	}

	if pc.RequestTimeout <= 0 {
		errors.Add("portal.request_timeout", "request timeout must be positive", pc.RequestTimeout)
	}

	if pc.PageSize < 1 || pc.PageSize > 100 {
		errors.Add("portal.page_size", "page size must be between 1 and 100", pc.PageSize)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for portal configuration
func (pc *PortalConfig) SetDefaults() {
	if pc.URL == "" {
		pc.URL = "https://www.arcgis.com"
	}
	if pc.Referer == "" {
		pc.Referer = "ago-backup"
	}
	if pc.TokenExpiration == 0 {
		pc.TokenExpiration = 120
	}
	if pc.RequestTimeout == 0 {
		pc.RequestTimeout = 60 * time.Second
	}
	if pc.PageSize == 0 {
		pc.PageSize = 100
	}
}

// LoadFromEnvironment loads portal configuration from environment variables
func (pc *PortalConfig) LoadFromEnvironment() {
	if val := os.Getenv("AGO_BACKUP_PORTAL_URL"); val != "" {
		pc.URL = val
	}

	if val := os.Getenv("AGO_BACKUP_USERNAME"); val != "" {
		pc.Username = val
	}

	if val := os.Getenv("AGO_BACKUP_PASSWORD"); val != "" {
		pc.Password = val
	}

	if val := os.Getenv("AGO_BACKUP_TOKEN_EXPIRATION"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			pc.TokenExpiration = parsed
		}
	}

	if val := os.Getenv("AGO_BACKUP_REQUEST_TIMEOUT"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			pc.RequestTimeout = parsed
		}
	}
}

// Validate validates the SearchConfig
func (sc *SearchConfig) Validate() error {
	var errors ValidationErrors

	if strings.TrimSpace(sc.Query) == "" {
		errors.Add("search.query", "search query is required", nil)
	}

	if sc.SortOrder != "asc" && sc.SortOrder != "desc" {
		errors.Add("search.sort_order", "sort order must be asc or desc", sc.SortOrder)
	}

	if sc.MaxResults < 1 {
		errors.Add("search.max_results", "max results must be positive", sc.MaxResults)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for search configuration
func (sc *SearchConfig) SetDefaults() {
	if sc.Query == "" {
		sc.Query = DefaultSearchQuery
	}
	if sc.SortField == "" {
		sc.SortField = DefaultSortField
	}
	if sc.SortOrder == "" {
		sc.SortOrder = DefaultSortOrder
	}
	if sc.MaxResults == 0 {
		sc.MaxResults = DefaultMaxResults
	}
}

// LoadFromEnvironment loads search configuration from environment variables
func (sc *SearchConfig) LoadFromEnvironment() {
	if val := os.Getenv("AGO_BACKUP_QUERY"); val != "" {
		sc.Query = val
	}

	if val := os.Getenv("AGO_BACKUP_MAX_ITEMS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			sc.MaxResults = parsed
		}
	}

	if val := os.Getenv("AGO_BACKUP_INCLUDE_VIEWS"); val != "" {
		sc.IncludeViews = strings.ToLower(val) == "true"
	}
}

// ToQuery converts the search configuration into a catalog query
func (sc *SearchConfig) ToQuery() SearchQuery {
	return SearchQuery{
		Query:      sc.Query,
		SortField:  sc.SortField,
		SortOrder:  sc.SortOrder,
		MaxResults: sc.MaxResults,
	}
}

// Validate validates the ArchiveConfig
func (ac *ArchiveConfig) Validate() error {
	var errors ValidationErrors

	if ac.Root == "" {
		errors.Add("archive.root", "archive root is required", nil)
	}

	if strings.ContainsAny(strings.TrimPrefix(ac.Extension, "."), `/\.`) {
		errors.Add("archive.extension", "extension must be a single path-free suffix", ac.Extension)
	}

	if ac.Permissions != 0 && ac.Permissions&0700 != 0700 {
		errors.Add("archive.permissions", "owner must have full access to the archive root", ac.Permissions)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for archive configuration
func (ac *ArchiveConfig) SetDefaults() {
	if ac.Root == "" {
		ac.Root = "./backups"
	}
	if ac.Extension == "" {
		ac.Extension = DefaultArchiveExtension
	}
	if ac.Permissions == 0 {
		ac.Permissions = 0755
	}
}

// LoadFromEnvironment loads archive configuration from environment variables
func (ac *ArchiveConfig) LoadFromEnvironment() {
	if val := os.Getenv("AGO_BACKUP_ARCHIVE_ROOT"); val != "" {
		ac.Root = val
	}

	if val := os.Getenv("AGO_BACKUP_SKIP_VERIFY"); val != "" {
		ac.SkipVerify = strings.ToLower(val) == "true"
	}
}

// Validate validates the AuditConfig
func (ac *AuditConfig) Validate() error {
	var errors ValidationErrors

	if ac.Path == "" {
		errors.Add("audit.path", "audit log path is required", nil)
	}

	if ac.RotateSize < 0 {
		errors.Add("audit.rotate_size", "rotate size cannot be negative", ac.RotateSize)
	}

	algorithm, err := compression.ParseAlgorithm(ac.Compression)
	if err != nil {
		errors.Add("audit.compression", "compression must be one of NONE, GZIP, LZ4, ZSTD", ac.Compression)
	} else if algorithm != compression.AlgorithmNone && ac.CompressionLevel != 0 {
		c, _ := compression.NewManager().Get(algorithm)
		if ac.CompressionLevel < c.MinLevel() || ac.CompressionLevel > c.MaxLevel() {
			errors.Add("audit.compression_level", "compression level out of range for algorithm", ac.CompressionLevel)
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for audit configuration. The audit log
// lives in the archive root unless configured otherwise.
func (ac *AuditConfig) SetDefaults(archiveRoot string) {
	if ac.Path == "" {
		ac.Path = filepath.Join(archiveRoot, "backup_audit.csv")
	}
	if ac.Compression == "" {
		ac.Compression = string(compression.AlgorithmGzip)
	}
}

// LoadFromEnvironment loads audit configuration from environment variables
func (ac *AuditConfig) LoadFromEnvironment() {
	if val := os.Getenv("AGO_BACKUP_AUDIT_FILE"); val != "" {
		ac.Path = val
	}

	if val := os.Getenv("AGO_BACKUP_AUDIT_ROTATE_SIZE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			ac.RotateSize = parsed
		}
	}

	if val := os.Getenv("AGO_BACKUP_AUDIT_COMPRESSION"); val != "" {
		ac.Compression = strings.ToUpper(val)
	}

	if val := os.Getenv("AGO_BACKUP_JOURNAL_FILE"); val != "" {
		ac.JournalFile = val
	}
}

// Validate validates the ExecutionConfig
func (ec *ExecutionConfig) Validate() error {
	var errors ValidationErrors

	if ec.Workers < 1 || ec.Workers > 32 {
		errors.Add("execution.workers", "workers must be between 1 and 32", ec.Workers)
	}

	if ec.ExportFormat == "" {
		errors.Add("execution.export_format", "export format is required", nil)
	}

	if ec.ExportTimeout <= 0 {
		errors.Add("execution.export_timeout", "export timeout must be positive", ec.ExportTimeout)
	}

	if ec.DownloadTimeout <= 0 {
		errors.Add("execution.download_timeout", "download timeout must be positive", ec.DownloadTimeout)
	}

	if ec.CleanupTimeout <= 0 {
		errors.Add("execution.cleanup_timeout", "cleanup timeout must be positive", ec.CleanupTimeout)
	}

	if ec.PollInterval <= 0 {
		errors.Add("execution.poll_interval", "poll interval must be positive", ec.PollInterval)
	} else if ec.ExportTimeout > 0 && ec.PollInterval >= ec.ExportTimeout {
		errors.Add("execution.poll_interval", "poll interval must be shorter than the export timeout", ec.PollInterval)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for execution configuration
func (ec *ExecutionConfig) SetDefaults() {
	if ec.Workers == 0 {
		ec.Workers = 4
	}
	if ec.ExportFormat == "" {
		ec.ExportFormat = DefaultExportFormat
	}
	if ec.ExportTimeout == 0 {
		ec.ExportTimeout = 30 * time.Minute
	}
	if ec.DownloadTimeout == 0 {
		ec.DownloadTimeout = 30 * time.Minute
	}
	if ec.CleanupTimeout == 0 {
		ec.CleanupTimeout = 2 * time.Minute
	}
	if ec.PollInterval == 0 {
		ec.PollInterval = 5 * time.Second
	}
}

// LoadFromEnvironment loads execution configuration from environment variables
func (ec *ExecutionConfig) LoadFromEnvironment() {
	if val := os.Getenv("AGO_BACKUP_WORKERS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			ec.Workers = parsed
		}
	}

	for name, target := range map[string]*time.Duration{
		"AGO_BACKUP_EXPORT_TIMEOUT":   &ec.ExportTimeout,
		"AGO_BACKUP_DOWNLOAD_TIMEOUT": &ec.DownloadTimeout,
		"AGO_BACKUP_CLEANUP_TIMEOUT":  &ec.CleanupTimeout,
		"AGO_BACKUP_POLL_INTERVAL":    &ec.PollInterval,
	} {
		if val := os.Getenv(name); val != "" {
			if parsed, err := time.ParseDuration(val); err == nil {
				*target = parsed
			}
		}
	}

	if val := os.Getenv("AGO_BACKUP_KEEP_REMOTE_EXPORTS"); val != "" {
		ec.KeepRemoteExports = strings.ToLower(val) == "true"
	}
}

// Location returns the zone timestamps are rendered in
func (nc *NamingConfig) Location() *time.Location {
	if nc.UTC {
		return time.UTC
	}
	return time.Local
}

// LoadFromEnvironment loads naming configuration from environment variables
func (nc *NamingConfig) LoadFromEnvironment() {
	if val := os.Getenv("AGO_BACKUP_UTC"); val != "" {
		nc.UTC = strings.ToLower(val) == "true"
	}
}
