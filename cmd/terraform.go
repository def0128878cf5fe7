package cmd

import (
	"fmt"

	"github.com/foomo/keel/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewTerraformCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "terraform",
		Short: "Writes the terraform configuration the backend needs",
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
			dir, err := a.frontend.GenerateTerraform(cmd.Context(), outputDirectoryFlag(v), a.backend, bucket)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}

	addOutputDirectoryFlag(cmd.Flags(), v, "~/terraform_configuration")

	return cmd
}
