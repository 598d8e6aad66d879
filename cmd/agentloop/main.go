package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentloop/internal/shared/config"
	"agentloop/internal/shared/logging"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	configPath string
	logLevel   string
	provider   string
	noColor    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "agentloop",
		Short:         "Run ReAct agent tasks with self-correcting tool use",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML/JSON/TOML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "reasoning provider: http, openai or mock")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newServeCommand(flags),
		newRunCommand(flags),
		newConfigCommand(flags),
		newVersionCommand(),
	)
	return root
}

// loadConfig resolves configuration with flag overrides applied last.
func loadConfig(flags *globalFlags, overrides config.Overrides) (config.RuntimeConfig, config.Metadata, error) {
	if flags.logLevel != "" {
		overrides.LogLevel = &flags.logLevel
	}
	if flags.provider != "" {
		overrides.Provider = &flags.provider
	}
	return config.Load(
		config.WithConfigPath(flags.configPath),
		config.WithOverrides(overrides),
	)
}

func setupLogging(cfg config.RuntimeConfig, noColor bool) (func(), error) {
	closer, err := logging.Setup(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		NoColor: noColor,
	})
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	return func() { _ = closer.Close() }, nil
}

type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentloop %s (%s)\n", version, commit)
		},
	}
}
