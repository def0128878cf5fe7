package config

import (
	"strings"

	"github.com/foomo/caretaker/pkg/backend"
	"github.com/foomo/caretaker/pkg/dump"
	"github.com/foomo/caretaker/pkg/frontend"
	"github.com/foomo/caretaker/pkg/handler"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, "local.store_directory" is read
// from CARETAKER_LOCAL_STORE_DIRECTORY.
const EnvPrefix = "CARETAKER"

type (
	// Config holds everything the commands need.
	Config struct {
		// Backend is the display name of the default backend
		Backend string `mapstructure:"backend"`
		// Backends lists candidate backend ids
		Backends []string `mapstructure:"backends"`
		// Frontend is the display name of the default frontend
		Frontend string `mapstructure:"frontend"`
		// Frontends lists candidate frontend ids
		Frontends []string `mapstructure:"frontends"`

		BackupBucket string `mapstructure:"backup_bucket"`
		DataFile     string `mapstructure:"data_file"`
		ArchiveFile  string `mapstructure:"archive_file"`

		// MediaRoot is always part of the archive
		MediaRoot string `mapstructure:"media_root"`
		// AdditionalBackupPaths are zipped next to the media root
		AdditionalBackupPaths []string `mapstructure:"additional_backup_paths"`
		// RestoreDir receives extracted archives, the parent of MediaRoot if empty
		RestoreDir string `mapstructure:"restore_dir"`

		Local backend.LocalConfig `mapstructure:"local"`
		Blob  backend.BlobConfig  `mapstructure:"blob"`
		S3    backend.S3Config    `mapstructure:"s3"`
		GCS   backend.GCSConfig   `mapstructure:"gcs"`

		Database dump.DatabaseConfig `mapstructure:"database"`
		SQL      SQL                 `mapstructure:"sql"`

		// Schedule is the cron expression of scheduled backups
		Schedule string `mapstructure:"schedule"`

		// Auth guards the http handler
		Auth handler.AuthConfig `mapstructure:"auth"`
	}
	// SQL overrides the commands of native dumps, the database defaults are used if empty.
	SQL struct {
		Export dump.ProcessConfig `mapstructure:"export"`
		Import dump.ProcessConfig `mapstructure:"import"`
	}
)

// defaults lists every key, viper resolves environment variables during
// Unmarshal only for keys it knows.
var defaults = map[string]any{
	"backend":                 "",
	"backends":                []string{},
	"frontend":                "",
	"frontends":               []string{},
	"backup_bucket":           "",
	"data_file":               frontend.DefaultDataFile,
	"archive_file":            frontend.DefaultArchiveFile,
	"media_root":              "",
	"additional_backup_paths": []string{},
	"restore_dir":             "",
	"local.store_directory":   "~/.caretaker",
	"local.file_pattern":      backend.DefaultFilePattern,
	"blob.url":                "",
	"blob.file_pattern":       backend.DefaultFilePattern,
	"s3.region":               "",
	"s3.endpoint":             "",
	"s3.access_key_id":        "",
	"s3.secret_access_key":    "",
	"s3.session_token":        "",
	"s3.use_path_style":       false,
	"gcs.credentials_file":    "",
	"gcs.endpoint":            "",
	"database.driver":         dump.DriverSQLite,
	"database.dsn":            "",
	"sql.export.binary":       "",
	"sql.export.args":         []string{},
	"sql.export.env":          []string{},
	"sql.import.binary":       "",
	"sql.import.args":         []string{},
	"sql.import.env":          []string{},
	"schedule":                "@daily",
	"auth.disabled":           false,
	"auth.token":              "",
	"auth.username":           "",
	"auth.password_hash":      "",
	"auth.realm":              "",
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewViper returns a viper instance with all defaults and environment lookups in place.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("media_root", EnvPrefix+"_MEDIA_ROOT", "MEDIA_ROOT")
	return v
}

func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the optional config file and decodes all settings.
func Load(v *viper.Viper, file string) (Config, error) {
	var c Config
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return c, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, errors.Wrap(err, "failed to decode config")
	}
	return c, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (c Config) BackendSettings() backend.Settings {
	return backend.Settings{
		Name:     c.Backend,
		Backends: c.Backends,
		Local:    c.Local,
		Blob:     c.Blob,
		S3:       c.S3,
		GCS:      c.GCS,
	}
}

func (c Config) FrontendSettings() frontend.Settings {
	return frontend.Settings{
		Name:      c.Frontend,
		Frontends: c.Frontends,
	}
}

// CreateOptions returns the file names of a backup set.
func (c Config) CreateOptions() frontend.CreateOptions {
	return frontend.CreateOptions{
		DataFile:    c.DataFile,
		ArchiveFile: c.ArchiveFile,
	}
}

// ExportCommand returns the native dump command.
func (c Config) ExportCommand() (dump.ProcessConfig, error) {
	if c.SQL.Export.Binary != "" {
		return c.SQL.Export, nil
	}
	if c.Database.DSN == "" {
		return dump.ProcessConfig{}, errors.New("no database configured")
	}
	return dump.DumpCommand(c.Database)
}

// ImportCommand returns the native restore command.
func (c Config) ImportCommand() (dump.ProcessConfig, error) {
	if c.SQL.Import.Binary != "" {
		return c.SQL.Import, nil
	}
	if c.Database.DSN == "" {
		return dump.ProcessConfig{}, errors.New("no database configured")
	}
	return dump.RestoreCommand(c.Database)
}
