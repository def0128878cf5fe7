package cmd

import (
	"github.com/foomo/caretaker/pkg/config"
	"github.com/foomo/keel/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NewRootCommand represents the base command when called without any subcommands
func NewRootCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:           "caretaker",
		Short:         "Creates, stores and restores versioned backups of an application",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zap.ReplaceGlobals(log.NewLogger(
				logLevelFlag(v),
				logFormatFlag(v),
			))
		},
	}

	flags := cmd.PersistentFlags()
	addLogLevelFlag(flags, v)
	addLogFormatFlag(flags, v)
	addConfigFlag(flags, v)
	addBackendFlag(flags, v)
	addFrontendFlag(flags, v)
	addBucketFlag(flags, v)

	cmd.AddCommand(NewListCommand(v))
	cmd.AddCommand(NewPushCommand(v))
	cmd.AddCommand(NewPullCommand(v))
	cmd.AddCommand(NewCreateCommand(v))
	cmd.AddCommand(NewRunCommand(v))
	cmd.AddCommand(NewImportCommand(v))
	cmd.AddCommand(NewExportCommand(v))
	cmd.AddCommand(NewTerraformCommand(v))
	cmd.AddCommand(NewScheduleCommand(v))
	cmd.AddCommand(NewServeCommand(v))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Logger().Fatal("failed to run command", zap.Error(err))
	}
}

// newViper returns a viper instance resolving configuration keys from CARETAKER_* variables.
func newViper() *viper.Viper {
	return config.NewViper()
}
