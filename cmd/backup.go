package cmd

import (
	"fmt"
	"time"

	"github.com/foomo/keel/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewListCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists available backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			bucket, err := a.bucket()
			if err != nil {
				return err
			}
			key := a.key(remoteKeyFlag(v))
			versions, err := a.frontend.ListBackups(cmd.Context(), a.backend, bucket, key)
			if err != nil {
				return errors.Wrapf(err, "unable to list versions of %s", key)
			}
			if len(versions) == 0 {
				a.l.Info("no backups found", zap.String("bucket", bucket), zap.String("key", key))
				return nil
			}
			for _, version := range versions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n",
					version.ID, version.LastModified.Format(time.RFC3339), version.Size)
			}
			return nil
		},
	}

	addRemoteKeyFlag(cmd.Flags(), v)

	return cmd
}

func NewPushCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Pushes a local file to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			localFile := localFileFlag(v)
			if localFile == "" {
				return errors.New("no local file specified")
			}

			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			bucket, err := a.bucket()
			if err != nil {
				return err
			}
			outcome, err := a.frontend.PushBackup(cmd.Context(), a.backend, localFile, bucket, a.key(remoteKeyFlag(v)), checkIdenticalFlag(v))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			return nil
		},
	}

	flags := cmd.Flags()
	addLocalFileFlag(flags, v)
	addRemoteKeyFlag(flags, v)
	addCheckIdenticalFlag(flags, v)

	return cmd
}

func NewPullCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pulls a specific backup from the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, outFile := backupVersionFlag(v), outFileFlag(v)
			if versionID == "" || outFile == "" {
				return errors.New("backup version and out file are required")
			}

			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			bucket, err := a.bucket()
			if err != nil {
				return err
			}
			path, err := a.frontend.PullBackup(cmd.Context(), a.backend, versionID, outFile, bucket, a.key(remoteKeyFlag(v)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	flags := cmd.Flags()
	addBackupVersionFlag(flags, v)
	addOutFileFlag(flags, v, "", "File the backup is written to")
	addRemoteKeyFlag(flags, v)

	return cmd
}

func NewCreateCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a local backup set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := a.cfg.CreateOptions()
			opts.Paths = additionalFilesFlag(v)
			opts.SQLMode = sqlFlag(v)
			dataFile, archiveFile, err := a.frontend.CreateBackup(cmd.Context(), outputDirectoryFlag(v), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dataFile)
			fmt.Fprintln(cmd.OutOrStdout(), archiveFile)
			return nil
		},
	}

	flags := cmd.Flags()
	addOutputDirectoryFlag(flags, v, "")
	addAdditionalFilesFlag(flags, v)
	addSQLFlag(flags, v)

	return cmd
}

func NewRunCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Creates a backup set and pushes it to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			bucket, err := a.bucket()
			if err != nil {
				return err
			}
			opts := a.cfg.CreateOptions()
			opts.Paths = additionalFilesFlag(v)
			opts.SQLMode = sqlFlag(v)
			result, err := a.frontend.RunBackup(cmd.Context(), a.backend, bucket, opts)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n%s: %s\n", opts.DataFile, result.Data, opts.ArchiveFile, result.Archive)
			return err
		},
	}

	flags := cmd.Flags()
	addAdditionalFilesFlag(flags, v)
	addSQLFlag(flags, v)

	return cmd
}
