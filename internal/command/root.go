package command

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vistara-analytics/internal/command/plan"
	"vistara-analytics/internal/command/run"
	"vistara-analytics/internal/command/validate"
	"vistara-analytics/internal/config"
	"vistara-analytics/internal/version"
	"vistara-analytics/pkg/defaults"
	"vistara-analytics/pkg/flags"
	"vistara-analytics/pkg/log"
)

func NewRootCommand() (*cobra.Command, error) {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "vsa",
		Short:         "Multi-card video analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags.BindCommandToViper(cmd)

			if err := log.Configure(&cfg.Logging); err != nil {
				return fmt.Errorf("configuring logging: %w", err)
			}

			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	cmd.SetGlobalNormalizationFunc(flags.UnderscoreNormalizer)

	log.AddFlagsToCommand(cmd, &cfg.Logging)

	cmd.PersistentFlags().StringVar(&cfg.EnvFile, "env-file", ".env", "File of KEY=value pairs loaded into the environment.")

	if err := addRootSubCommands(cmd, cfg); err != nil {
		return nil, fmt.Errorf("adding subcommands: %w", err)
	}

	cobra.OnInitialize(func() { initCobra(cfg) })

	return cmd, nil
}

func initCobra(cfg *config.Config) {
	_ = config.LoadEnv(cfg.EnvFile)

	viper.SetEnvPrefix(defaults.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath("$HOME/.config/vsa/")

	_ = viper.ReadInConfig()
}

// Add run new command to the root command
func addRootSubCommands(cmd *cobra.Command, cfg *config.Config) error {
	runCmd, err := run.NewCommand(cfg)
	if err != nil {
		return fmt.Errorf("creating run cobra command: %w", err)
	}

	cmd.AddCommand(runCmd)
	cmd.AddCommand(validate.NewCommand(cfg))
	cmd.AddCommand(plan.NewCommand(cfg))
	cmd.AddCommand(versionCommand())

	return nil
}

func versionCommand() *cobra.Command {
	var long, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the vsa build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			switch {
			case short:
				fmt.Fprintln(out, version.Version)
			case long:
				fmt.Fprintf(out, "%s %s\n  commit: %s\n  built:  %s\n  go:     %s\n",
					version.PackageName, version.Version, version.CommitHash, version.BuildDate, runtime.Version())
			default:
				fmt.Fprintf(out, "%s %s\n", version.PackageName, version.Version)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	cmd.Flags().BoolVar(&long, "long", false, "Also print the commit, build date and Go version")
	cmd.MarkFlagsMutuallyExclusive("short", "long")

	return cmd
}
