package plan

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/coder/quartz"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	cmdflags "vistara-analytics/internal/command/flags"
	"vistara-analytics/internal/config"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/flags"
	"vistara-analytics/pkg/log"
	"vistara-analytics/pkg/orchestrator"
	"vistara-analytics/pkg/ports"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print how the fleet's channels are allocated over its cards",
		PreRunE: func(c *cobra.Command, _ []string) error {
			flags.BindCommandToViper(c)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := fleet.Load(afero.NewOsFs(), cfg.ConfigFile)
			if err != nil {
				return err
			}

			p := &ports.Collection{Clock: quartz.NewReal()}

			o, err := orchestrator.New(orchestrator.Config{Out: io.Discard}, fc, p, log.GetLogger(cmd.Context()))
			if err != nil {
				return err
			}

			return Print(cmd.OutOrStdout(), fc, o)
		},
	}

	cmdflags.AddFleetFlagsToCommand(cmd, cfg)

	return cmd
}

// Print writes one row per card: index, device id, global channel range,
// detector model and the stream URLs bound to the card's channels.
func Print(w io.Writer, fc *fleet.Config, o *orchestrator.Orchestrator) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "CARD\tDEVICE\tCHANNELS\tMODEL\tURLS")

	for _, rng := range o.Plan() {
		model := "-"
		if m, err := fc.DetectorModel(rng.Card); err == nil {
			model = m.Name
		}

		fmt.Fprintf(tw, "%d\t%d\t[%d,%d)\t%s\t%s\n",
			rng.Card, fc.DeviceID(rng.Card), rng.Start, rng.End(), model, strings.Join(o.ChannelURLs(rng.Card), ","))
	}

	return tw.Flush()
}
