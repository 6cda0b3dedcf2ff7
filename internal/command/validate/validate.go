package validate

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	cmdflags "vistara-analytics/internal/command/flags"
	"vistara-analytics/internal/config"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/flags"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a fleet descriptor without touching any device",
		PreRunE: func(c *cobra.Command, _ []string) error {
			flags.BindCommandToViper(c)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := fleet.Load(afero.NewOsFs(), cfg.ConfigFile)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d cards, %d channels, %d models\n",
				cfg.ConfigFile, fc.CardCount(), fc.TotalChannelCount(), len(fc.Models))

			return nil
		},
	}

	cmdflags.AddFleetFlagsToCommand(cmd, cfg)

	return cmd
}
