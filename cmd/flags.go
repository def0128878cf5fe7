package cmd

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func logLevelFlag(v *viper.Viper) string {
	return v.GetString("log.level")
}

func addLogLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-level", "info", "log level")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

func logFormatFlag(v *viper.Viper) string {
	return v.GetString("log.format")
}

func addLogFormatFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-format", "json", "log format")
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindEnv("log.format", "LOG_FORMAT")
}

func configFlag(v *viper.Viper) string {
	return v.GetString("config")
}

func addConfigFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("config", "", "Path to a config file (yaml, json or toml)")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindEnv("config", "CARETAKER_CONFIG")
}

func addBackendFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backend", "", "Display name of the backend to use")
	_ = v.BindPFlag("backend", flags.Lookup("backend"))
	_ = v.BindEnv("backend", "CARETAKER_BACKEND")
}

func addFrontendFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("frontend", "", "Display name of the frontend to use")
	_ = v.BindPFlag("frontend", flags.Lookup("frontend"))
	_ = v.BindEnv("frontend", "CARETAKER_FRONTEND")
}

func addBucketFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("bucket", "", "Bucket holding the backups")
	_ = v.BindPFlag("backup_bucket", flags.Lookup("bucket"))
	_ = v.BindEnv("backup_bucket", "CARETAKER_BACKUP_BUCKET")
}

func addScheduleFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("schedule", "", "Cron expression of scheduled backups")
	_ = v.BindPFlag("schedule", flags.Lookup("schedule"))
	_ = v.BindEnv("schedule", "CARETAKER_SCHEDULE")
}

func remoteKeyFlag(v *viper.Viper) string {
	return v.GetString("remote_key")
}

func addRemoteKeyFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("remote-key", "", "Key of the backup, the configured data file name if empty")
	_ = v.BindPFlag("remote_key", flags.Lookup("remote-key"))
}

func localFileFlag(v *viper.Viper) string {
	return v.GetString("local_file")
}

func addLocalFileFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-local-file", "", "Local file to push")
	_ = v.BindPFlag("local_file", flags.Lookup("backup-local-file"))
}

func checkIdenticalFlag(v *viper.Viper) bool {
	return v.GetBool("check_identical")
}

func addCheckIdenticalFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("check-identical", true, "Skip the upload if the latest version has the same content")
	_ = v.BindPFlag("check_identical", flags.Lookup("check-identical"))
}

func backupVersionFlag(v *viper.Viper) string {
	return v.GetString("backup_version")
}

func addBackupVersionFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-version", "", "Version id of the backup")
	_ = v.BindPFlag("backup_version", flags.Lookup("backup-version"))
}

func outFileFlag(v *viper.Viper) string {
	return v.GetString("out_file")
}

func addOutFileFlag(flags *pflag.FlagSet, v *viper.Viper, value, usage string) {
	flags.StringP("out-file", "o", value, usage)
	_ = v.BindPFlag("out_file", flags.Lookup("out-file"))
}

func outputDirectoryFlag(v *viper.Viper) string {
	return v.GetString("output_directory")
}

func addOutputDirectoryFlag(flags *pflag.FlagSet, v *viper.Viper, value string) {
	flags.String("output-directory", value, "Directory the files are written to")
	_ = v.BindPFlag("output_directory", flags.Lookup("output-directory"))
}

func additionalFilesFlag(v *viper.Viper) []string {
	return v.GetStringSlice("additional_files")
}

func addAdditionalFilesFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.StringSliceP("additional-files", "a", nil, "Additional directories to archive")
	_ = v.BindPFlag("additional_files", flags.Lookup("additional-files"))
}

func sqlFlag(v *viper.Viper) bool {
	return v.GetBool("sql")
}

func addSQLFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("sql", false, "Write a native SQL dump instead of a JSON snapshot")
	_ = v.BindPFlag("sql", flags.Lookup("sql"))
}

func dryRunFlag(v *viper.Viper) bool {
	return v.GetBool("dry_run")
}

func addDryRunFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("dry-run", false, "Only detect and validate the input")
	_ = v.BindPFlag("dry_run", flags.Lookup("dry-run"))
}

func alternativeBinaryFlag(v *viper.Viper) string {
	return v.GetString("alternative_binary")
}

func addAlternativeBinaryFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("alternative-binary", "", "Binary replacing the default dump tool")
	_ = v.BindPFlag("alternative_binary", flags.Lookup("alternative-binary"))
}

func alternativeArgumentsFlag(v *viper.Viper) string {
	return v.GetString("alternative_arguments")
}

func addAlternativeArgumentsFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("alternative-arguments", "", "Arguments of the alternative binary")
	_ = v.BindPFlag("alternative_arguments", flags.Lookup("alternative-arguments"))
}

func addressFlag(v *viper.Viper) string {
	return v.GetString("address")
}

func addAddressFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("address", ":8080", "Address to bind to (host:port)")
	_ = v.BindPFlag("address", flags.Lookup("address"))
	_ = v.BindEnv("address", "CARETAKER_ADDRESS")
}

func basePathFlag(v *viper.Viper) string {
	return v.GetString("base_path")
}

func addBasePathFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("base-path", "/caretaker", "Base path to export the webserver on")
	_ = v.BindPFlag("base_path", flags.Lookup("base-path"))
	_ = v.BindEnv("base_path", "CARETAKER_BASE_PATH")
}

func scheduleEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("schedule_enabled")
}

func addScheduleEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("schedule-enabled", false, "Run scheduled backups next to the webserver")
	_ = v.BindPFlag("schedule_enabled", flags.Lookup("schedule-enabled"))
	_ = v.BindEnv("schedule_enabled", "CARETAKER_SCHEDULE_ENABLED")
}

func gracefulPeriodFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("graceful_period")
}

func addGracefulPeriodFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("graceful-period", 0, "Graceful period before shutdown")
	_ = v.BindPFlag("graceful_period", flags.Lookup("graceful-period"))
	_ = v.BindEnv("graceful_period", "CARETAKER_GRACEFUL_PERIOD")
}

func serviceHealthzEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.healthz.enabled")
}

func addServiceHealthzEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-healthz-enabled", false, "Enable healthz service")
	_ = v.BindPFlag("service.healthz.enabled", flags.Lookup("service-healthz-enabled"))
}

func servicePrometheusEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.prometheus.enabled")
}

func addServicePrometheusEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-prometheus-enabled", false, "Enable prometheus service")
	_ = v.BindPFlag("service.prometheus.enabled", flags.Lookup("service-prometheus-enabled"))
}

func otelEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("otel.enabled")
}

func addOtelEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("otel-enabled", false, "Enable otel service")
	_ = v.BindPFlag("otel.enabled", flags.Lookup("otel-enabled"))
	_ = v.BindEnv("otel.enabled", "OTEL_ENABLED")
}
