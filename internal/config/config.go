package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP        HTTP        `json:"http"`
	Persistence Persistence `json:"persistence"`
	Ingest      Ingest      `json:"ingest"`
}

type Persistence struct {
	Database Database `json:"database"`
	Archives Archives `json:"archives"`
}

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)

type Database struct {
	Driver          DatabaseDriver `json:"driver"`
	Database        string         `json:"database"`
	Username        string         `json:"username"`
	Password        string         `json:"password"`
	Host            string         `json:"host"`
	Port            uint16         `json:"port"`
	ExtraParameters string         `json:"extra_parameters" yaml:"extra_parameters"`
}

type ArchivesDriver string

const (
	ArchivesDriverFilesystem ArchivesDriver = "filesystem"
	ArchivesDriverS3         ArchivesDriver = "s3"
)

// Archives controls retention of the raw uploaded diagnostic archives.
type Archives struct {
	Enabled   bool           `json:"enabled"`
	Driver    ArchivesDriver `json:"driver"`
	Directory string         `json:"directory"`
	S3        S3             `json:"s3"`
}

type S3 struct {
	Region   string `json:"region"`
	Bucket   string `json:"bucket"`
	Endpoint string `json:"endpoint"`
}

type Ingest struct {
	// WorkDir holds one short-lived extraction directory per upload.
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

type HTTPListener struct {
	IPV4Host string `json:"ipv4_host" yaml:"ipv4_host"`
	IPV6Host string `json:"ipv6_host" yaml:"ipv6_host"`
	Port     uint16 `json:"port"`
}

type Tracing struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

type PProf struct {
	Enabled bool `json:"enabled"`
}

type Metrics struct {
	HTTPListener `yaml:",inline"`
	Enabled      bool `json:"enabled"`
}

type HTTP struct {
	HTTPListener   `yaml:",inline"`
	Tracing        Tracing  `json:"tracing"`
	PProf          PProf    `json:"pprof"`
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
	Metrics        Metrics  `json:"metrics"`
	CORSHosts      []string `json:"cors_hosts" yaml:"cors_hosts"`
}

//nolint:golint,gochecknoglobals
var (
	ConfigFileKey                         = "config"
	HTTPIPV4HostKey                       = "http.ipv4_host"
	HTTPIPV6HostKey                       = "http.ipv6_host"
	HTTPPortKey                           = "http.port"
	HTTPTracingEnabledKey                 = "http.tracing.enabled"
	HTTPTracingOTLPEndKey                 = "http.tracing.otlp_endpoint"
	HTTPPProfEnabledKey                   = "http.pprof.enabled"
	HTTPTrustedProxiesKey                 = "http.trusted_proxies"
	HTTPMetricsEnabledKey                 = "http.metrics.enabled"
	HTTPMetricsIPV4HostKey                = "http.metrics.ipv4_host"
	HTTPMetricsIPV6HostKey                = "http.metrics.ipv6_host"
	HTTPMetricsPortKey                    = "http.metrics.port"
	HTTPCORSHostsKey                      = "http.cors_hosts"
	PersistenceDatabaseDriverKey          = "persistence.database.driver"
	PersistenceDatabaseDatabaseKey        = "persistence.database.database"
	PersistenceDatabaseUsernameKey        = "persistence.database.username"
	PersistenceDatabasePasswordKey        = "persistence.database.password"
	PersistenceDatabaseHostKey            = "persistence.database.host"
	PersistenceDatabasePortKey            = "persistence.database.port"
	PersistenceDatabaseExtraParametersKey = "persistence.database.extra_parameters"
	PersistenceArchivesEnabledKey         = "persistence.archives.enabled"
	PersistenceArchivesDriverKey          = "persistence.archives.driver"
	PersistenceArchivesDirectoryKey       = "persistence.archives.directory"
	PersistenceArchivesS3RegionKey        = "persistence.archives.s3.region"
	PersistenceArchivesS3BucketKey        = "persistence.archives.s3.bucket"
	PersistenceArchivesS3EndpointKey      = "persistence.archives.s3.endpoint"
	IngestWorkDirKey                      = "ingest.work_dir"
)

const (
	DefaultConfigPath                   = "config.yaml"
	DefaultHTTPIPV4Host                 = "0.0.0.0"
	DefaultHTTPIPV6Host                 = "::"
	DefaultHTTPPort                     = 8000
	DefaultHTTPMetricsIPV4Host          = "127.0.0.1"
	DefaultHTTPMetricsIPV6Host          = "::1"
	DefaultHTTPMetricsPort              = 8001
	DefaultPersistenceDatabaseDriver    = DatabaseDriverSQLite
	DefaultPersistenceDatabaseDatabase  = "logcapture.db"
	DefaultPersistenceArchivesDriver    = ArchivesDriverFilesystem
	DefaultPersistenceArchivesDirectory = "archives/"
	defaultIngestWorkDirName            = "logcapture-server"
)

func DefaultIngestWorkDir() string {
	return filepath.Join(os.TempDir(), defaultIngestWorkDirName)
}

func RegisterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(ConfigFileKey, "c", DefaultConfigPath, "Config file path")
	cmd.Flags().String(HTTPIPV4HostKey, DefaultHTTPIPV4Host, "HTTP server IPv4 host")
	cmd.Flags().String(HTTPIPV6HostKey, DefaultHTTPIPV6Host, "HTTP server IPv6 host")
	cmd.Flags().Uint16(HTTPPortKey, DefaultHTTPPort, "HTTP server port")
	cmd.Flags().Bool(HTTPTracingEnabledKey, false, "Enable Open Telemetry tracing")
	cmd.Flags().String(HTTPTracingOTLPEndKey, "", "Open Telemetry endpoint")
	cmd.Flags().Bool(HTTPPProfEnabledKey, false, "Enable pprof")
	cmd.Flags().StringSlice(HTTPTrustedProxiesKey, []string{}, "Comma-separated list of trusted proxies")
	cmd.Flags().Bool(HTTPMetricsEnabledKey, false, "Enable metrics server")
	cmd.Flags().String(HTTPMetricsIPV4HostKey, DefaultHTTPMetricsIPV4Host, "Metrics server IPv4 host")
	cmd.Flags().String(HTTPMetricsIPV6HostKey, DefaultHTTPMetricsIPV6Host, "Metrics server IPv6 host")
	cmd.Flags().Uint16(HTTPMetricsPortKey, DefaultHTTPMetricsPort, "Metrics server port")
	cmd.Flags().StringSlice(HTTPCORSHostsKey, []string{}, "Comma-separated list of CORS hosts")
	cmd.Flags().String(PersistenceDatabaseDriverKey, string(DefaultPersistenceDatabaseDriver), "Database driver (sqlite, mysql, postgres)")
	cmd.Flags().String(PersistenceDatabaseDatabaseKey, DefaultPersistenceDatabaseDatabase, "Database name or sqlite path")
	cmd.Flags().String(PersistenceDatabaseUsernameKey, "", "Database username")
	cmd.Flags().String(PersistenceDatabasePasswordKey, "", "Database password")
	cmd.Flags().String(PersistenceDatabaseHostKey, "", "Database host")
	cmd.Flags().Uint16(PersistenceDatabasePortKey, 0, "Database port")
	cmd.Flags().String(PersistenceDatabaseExtraParametersKey, "", "Database extra parameters")
	cmd.Flags().Bool(PersistenceArchivesEnabledKey, false, "Retain uploaded archives")
	cmd.Flags().String(PersistenceArchivesDriverKey, string(DefaultPersistenceArchivesDriver), "Archive storage driver (filesystem, s3)")
	cmd.Flags().String(PersistenceArchivesDirectoryKey, DefaultPersistenceArchivesDirectory, "Archive storage directory")
	cmd.Flags().String(PersistenceArchivesS3RegionKey, "", "Archive storage S3 region")
	cmd.Flags().String(PersistenceArchivesS3BucketKey, "", "Archive storage S3 bucket")
	cmd.Flags().String(PersistenceArchivesS3EndpointKey, "", "Archive storage S3 endpoint")
	cmd.Flags().String(IngestWorkDirKey, DefaultIngestWorkDir(), "Scratch directory for archive extraction")
}

var (
	ErrOTLPEndpointRequired      = errors.New("OTLP endpoint is required when tracing is enabled")
	ErrDBHostRequired            = errors.New("Database host is required")
	ErrDBDatabaseRequired        = errors.New("Database name is required")
	ErrDatabaseDriverRequired    = errors.New("Database driver is required")
	ErrInvalidDatabaseDriver     = errors.New("Database driver must be one of sqlite, mysql, postgres")
	ErrWorkDirRequired           = errors.New("Ingest work directory is required")
	ErrArchivesDriverInvalid     = errors.New("Archive storage driver must be one of filesystem, s3")
	ErrArchivesDirectoryRequired = errors.New("Archive storage directory is required")
	ErrS3BucketRequired          = errors.New("S3 bucket is required for archive storage")
)

func (c *Config) Validate() error {
	if c.HTTP.Tracing.Enabled && c.HTTP.Tracing.OTLPEndpoint == "" {
		return ErrOTLPEndpointRequired
	}
	if c.Persistence.Database.Driver == "" {
		return ErrDatabaseDriverRequired
	}
	switch c.Persistence.Database.Driver {
	case DatabaseDriverSQLite, DatabaseDriverMySQL, DatabaseDriverPostgres:
	default:
		return ErrInvalidDatabaseDriver
	}
	if c.Persistence.Database.Driver != DatabaseDriverSQLite && c.Persistence.Database.Host == "" {
		return ErrDBHostRequired
	}
	if c.Persistence.Database.Database == "" {
		return ErrDBDatabaseRequired
	}
	if c.Ingest.WorkDir == "" {
		return ErrWorkDirRequired
	}
	if c.Persistence.Archives.Enabled {
		switch c.Persistence.Archives.Driver {
		case ArchivesDriverFilesystem:
			if c.Persistence.Archives.Directory == "" {
				return ErrArchivesDirectoryRequired
			}
		case ArchivesDriverS3:
			if c.Persistence.Archives.S3.Bucket == "" {
				return ErrS3BucketRequired
			}
		default:
			return ErrArchivesDriverInvalid
		}
	}

	return nil
}

func LoadConfig(cmd *cobra.Command) (*Config, error) {
	var config Config

	// Load flags from envs
	ctx, cancel := context.WithCancelCause(cmd.Context())
	defer cancel(nil)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if ctx.Err() != nil {
			return
		}
		optName := strings.ReplaceAll(strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_"), ".", "__")
		if val, ok := os.LookupEnv(optName); !f.Changed && ok {
			if err := f.Value.Set(val); err != nil {
				cancel(err)
			}
			f.Changed = true
		}
	})
	if ctx.Err() != nil {
		return &config, fmt.Errorf("failed to load env: %w", context.Cause(ctx))
	}

	configPath, err := cmd.Flags().GetString(ConfigFileKey)
	if err != nil {
		return &config, fmt.Errorf("failed to get config path: %w", err)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return &config, fmt.Errorf("failed to read config: %w", err)
		} else if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return &config, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	err = overrideFlags(&config, cmd)
	if err != nil {
		return &config, fmt.Errorf("failed to override flags: %w", err)
	}

	// Defaults
	if config.HTTP.IPV4Host == "" {
		config.HTTP.IPV4Host = DefaultHTTPIPV4Host
	}
	if config.HTTP.IPV6Host == "" {
		config.HTTP.IPV6Host = DefaultHTTPIPV6Host
	}
	if config.HTTP.Port == 0 {
		config.HTTP.Port = DefaultHTTPPort
	}
	if config.HTTP.Metrics.IPV4Host == "" {
		config.HTTP.Metrics.IPV4Host = DefaultHTTPMetricsIPV4Host
	}
	if config.HTTP.Metrics.IPV6Host == "" {
		config.HTTP.Metrics.IPV6Host = DefaultHTTPMetricsIPV6Host
	}
	if config.HTTP.Metrics.Port == 0 {
		config.HTTP.Metrics.Port = DefaultHTTPMetricsPort
	}
	if config.Persistence.Database.Driver == "" {
		config.Persistence.Database.Driver = DefaultPersistenceDatabaseDriver
	}
	if config.Persistence.Database.Database == "" {
		config.Persistence.Database.Database = DefaultPersistenceDatabaseDatabase
	}
	if config.Persistence.Archives.Driver == "" {
		config.Persistence.Archives.Driver = DefaultPersistenceArchivesDriver
	}
	if config.Persistence.Archives.Directory == "" {
		config.Persistence.Archives.Directory = DefaultPersistenceArchivesDirectory
	}
	if config.Ingest.WorkDir == "" {
		config.Ingest.WorkDir = DefaultIngestWorkDir()
	}

	return &config, nil
}

//nolint:golint,gocyclo
func overrideFlags(config *Config, cmd *cobra.Command) error {
	var err error
	if cmd.Flags().Changed(HTTPIPV4HostKey) {
		config.HTTP.IPV4Host, err = cmd.Flags().GetString(HTTPIPV4HostKey)
		if err != nil {
			return fmt.Errorf("failed to get HTTP IPv4 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPIPV6HostKey) {
		config.HTTP.IPV6Host, err = cmd.Flags().GetString(HTTPIPV6HostKey)
		if err != nil {
			return fmt.Errorf("failed to get HTTP IPv6 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPPortKey) {
		config.HTTP.Port, err = cmd.Flags().GetUint16(HTTPPortKey)
		if err != nil {
			return fmt.Errorf("failed to get HTTP port: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPPProfEnabledKey) {
		config.HTTP.PProf.Enabled, err = cmd.Flags().GetBool(HTTPPProfEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get pprof enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTrustedProxiesKey) {
		config.HTTP.TrustedProxies, err = cmd.Flags().GetStringSlice(HTTPTrustedProxiesKey)
		if err != nil {
			return fmt.Errorf("failed to get trusted proxies: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsEnabledKey) {
		config.HTTP.Metrics.Enabled, err = cmd.Flags().GetBool(HTTPMetricsEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsIPV4HostKey) {
		config.HTTP.Metrics.IPV4Host, err = cmd.Flags().GetString(HTTPMetricsIPV4HostKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics IPv4 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsIPV6HostKey) {
		config.HTTP.Metrics.IPV6Host, err = cmd.Flags().GetString(HTTPMetricsIPV6HostKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics IPv6 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsPortKey) {
		config.HTTP.Metrics.Port, err = cmd.Flags().GetUint16(HTTPMetricsPortKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics port: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTracingEnabledKey) {
		config.HTTP.Tracing.Enabled, err = cmd.Flags().GetBool(HTTPTracingEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get tracing enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTracingOTLPEndKey) {
		config.HTTP.Tracing.OTLPEndpoint, err = cmd.Flags().GetString(HTTPTracingOTLPEndKey)
		if err != nil {
			return fmt.Errorf("failed to get tracing OTLP endpoint: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPCORSHostsKey) {
		config.HTTP.CORSHosts, err = cmd.Flags().GetStringSlice(HTTPCORSHostsKey)
		if err != nil {
			return fmt.Errorf("failed to get CORS hosts: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseDriverKey) {
		drvr, err := cmd.Flags().GetString(PersistenceDatabaseDriverKey)
		if err != nil {
			return fmt.Errorf("failed to get database driver: %w", err)
		}
		config.Persistence.Database.Driver = DatabaseDriver(strings.ToLower(drvr))
	}

	if cmd.Flags().Changed(PersistenceDatabaseDatabaseKey) {
		config.Persistence.Database.Database, err = cmd.Flags().GetString(PersistenceDatabaseDatabaseKey)
		if err != nil {
			return fmt.Errorf("failed to get database name: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseUsernameKey) {
		config.Persistence.Database.Username, err = cmd.Flags().GetString(PersistenceDatabaseUsernameKey)
		if err != nil {
			return fmt.Errorf("failed to get database username: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabasePasswordKey) {
		config.Persistence.Database.Password, err = cmd.Flags().GetString(PersistenceDatabasePasswordKey)
		if err != nil {
			return fmt.Errorf("failed to get database password: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseHostKey) {
		config.Persistence.Database.Host, err = cmd.Flags().GetString(PersistenceDatabaseHostKey)
		if err != nil {
			return fmt.Errorf("failed to get database host: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabasePortKey) {
		config.Persistence.Database.Port, err = cmd.Flags().GetUint16(PersistenceDatabasePortKey)
		if err != nil {
			return fmt.Errorf("failed to get database port: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceDatabaseExtraParametersKey) {
		config.Persistence.Database.ExtraParameters, err = cmd.Flags().GetString(PersistenceDatabaseExtraParametersKey)
		if err != nil {
			return fmt.Errorf("failed to get database extra parameters: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceArchivesEnabledKey) {
		config.Persistence.Archives.Enabled, err = cmd.Flags().GetBool(PersistenceArchivesEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get archives enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceArchivesDriverKey) {
		drvr, err := cmd.Flags().GetString(PersistenceArchivesDriverKey)
		if err != nil {
			return fmt.Errorf("failed to get archives driver: %w", err)
		}
		config.Persistence.Archives.Driver = ArchivesDriver(strings.ToLower(drvr))
	}

	if cmd.Flags().Changed(PersistenceArchivesDirectoryKey) {
		config.Persistence.Archives.Directory, err = cmd.Flags().GetString(PersistenceArchivesDirectoryKey)
		if err != nil {
			return fmt.Errorf("failed to get archives directory: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceArchivesS3RegionKey) {
		config.Persistence.Archives.S3.Region, err = cmd.Flags().GetString(PersistenceArchivesS3RegionKey)
		if err != nil {
			return fmt.Errorf("failed to get archives S3 region: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceArchivesS3BucketKey) {
		config.Persistence.Archives.S3.Bucket, err = cmd.Flags().GetString(PersistenceArchivesS3BucketKey)
		if err != nil {
			return fmt.Errorf("failed to get archives S3 bucket: %w", err)
		}
	}

	if cmd.Flags().Changed(PersistenceArchivesS3EndpointKey) {
		config.Persistence.Archives.S3.Endpoint, err = cmd.Flags().GetString(PersistenceArchivesS3EndpointKey)
		if err != nil {
			return fmt.Errorf("failed to get archives S3 endpoint: %w", err)
		}
	}

	if cmd.Flags().Changed(IngestWorkDirKey) {
		config.Ingest.WorkDir, err = cmd.Flags().GetString(IngestWorkDirKey)
		if err != nil {
			return fmt.Errorf("failed to get ingest work directory: %w", err)
		}
	}

	return nil
}
