// Package cli wires the search engine, the store adapters and the config
// layer into the dsearch command line.
package cli

import (
	"fmt"
	"os"

	internal "github.com/ZanzyTHEbar/drive-search/dsearch"
	"github.com/ZanzyTHEbar/drive-search/dsearch/config"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

// app is the state shared by subcommands once the root pre-run has loaded
// the configuration
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the dsearch command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           internal.DefaultAppName,
		Short:         "Recursively search a remote folder tree for images by name",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}

			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") {
				level = opts.logLevel
			}
			pretty := cfg.Log.Pretty || opts.pretty

			a.cfg = cfg
			a.logger = internal.NewLogger(cmd.ErrOrStderr(), level, pretty)
			if used := config.GetConfigFileUsed(); used != "" {
				a.logger.Debug().Str("path", used).Msg("loaded config file")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", fmt.Sprintf("config file (default is %s)", internal.DefaultGlobalConfigFile))
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", internal.DefaultLogLevel, "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "human friendly console logs")

	cmd.AddCommand(newSearchCmd(a), newVersionCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		newConsole(os.Stdout, os.Stderr, true).Error("dsearch", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dsearch version",
		Args:  cobra.NoArgs,
		// version needs no config
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", internal.DefaultAppName, Version)
		},
	}
}
