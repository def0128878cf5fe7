package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/foomo/caretaker/pkg/utils"
	"github.com/foomo/keel/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewImportCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "import <input-file>",
		Short: "Imports a JSON snapshot, a SQL dump or a media archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrideProcess(root, "sql.import", v)

			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			fileType, err := a.frontend.ImportFile(cmd.Context(), args[0], dryRunFlag(v))
			if err != nil {
				return err
			}
			a.l.Info("import finished", zap.Stringer("type", fileType), zap.Bool("dry_run", dryRunFlag(v)))
			return nil
		},
	}

	flags := cmd.Flags()
	addDryRunFlag(flags, v)
	addAlternativeBinaryFlag(flags, v)
	addAlternativeArgumentsFlag(flags, v)

	return cmd
}

func NewExportCommand(root *viper.Viper) *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes a native SQL dump of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			overrideProcess(root, "sql.export", v)

			a, err := newApp(cmd.Context(), log.Logger(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if outFile := outFileFlag(v); outFile != "-" {
				outFile = utils.ExpandPath(outFile)
				f, createErr := os.Create(outFile)
				if createErr != nil {
					return errors.Wrapf(createErr, "failed to create %s", outFile)
				}
				defer func() {
					if closeErr := f.Close(); err == nil && closeErr != nil {
						err = errors.Wrapf(closeErr, "failed to close %s", outFile)
					}
				}()
				w = f
			}
			return a.frontend.ExportSQL(cmd.Context(), w)
		},
	}

	flags := cmd.Flags()
	addOutFileFlag(flags, v, "-", "File the dump is written to, - for stdout")
	addAlternativeBinaryFlag(flags, v)
	addAlternativeArgumentsFlag(flags, v)

	return cmd
}

// overrideProcess replaces the configured dump command below prefix by the alternative flags.
func overrideProcess(root *viper.Viper, prefix string, v *viper.Viper) {
	binary := alternativeBinaryFlag(v)
	if binary == "" {
		return
	}
	root.Set(prefix+".binary", binary)
	root.Set(prefix+".args", strings.Fields(alternativeArgumentsFlag(v)))
}
