// Package main provides the gaiachat CLI: the chat proxy server and an
// interactive terminal client for it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gaiachat/internal/config"
	"gaiachat/internal/logger"
	"gaiachat/internal/version"
)

// app carries the resolved configuration into subcommands.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gaiachat",
		Short: "Gaia node chat proxy with AutoDrive transcript storage",
		Long: `gaiachat proxies chat messages to an OpenAI-compatible Gaia node, keeps
per-session conversations in memory and stores transcripts on AutoDrive
for wallet-authenticated users.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String("log-file", "", "Write logs to file instead of stderr")
	mustBind(a.v, config.KeyLogLevel, flags.Lookup("log-level"))
	mustBind(a.v, config.KeyLogFile, flags.Lookup("log-file"))

	root.AddCommand(a.newServeCmd())
	root.AddCommand(a.newChatCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// setup loads .env files, resolves configuration and configures logging.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	loaded, err := config.LoadDotEnv(config.DotEnvPaths()...)
	if err != nil {
		return err
	}
	if err := config.Bind(a.v); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	if len(loaded) > 0 {
		logger.Debug("Loaded environment files", "files", loaded)
	}
	a.cfg = cfg
	return nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag.Name, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := version.GetInfo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.GetFormattedVersion())
			fmt.Fprintf(out, "go %s %s\n", info.GoVersion, info.Platform)
			return nil
		},
	}
}
