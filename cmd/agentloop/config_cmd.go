package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agentloop/internal/shared/config"
)

const redacted = "********"

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigDumpCommand(flags))
	return cmd
}

func newConfigDumpCommand(flags *globalFlags) *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := loadConfig(flags, config.Overrides{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			data, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if meta.Path() != "" {
				fmt.Fprintf(out, "# loaded from %s\n", meta.Path())
			}
			fmt.Fprint(out, string(data))

			if showSources {
				sources := meta.Sources()
				keys := make([]string, 0, len(sources))
				for key := range sources {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				fmt.Fprintln(out, "\n# non-default sources")
				for _, key := range keys {
					fmt.Fprintf(out, "# %s: %s\n", key, sources[key])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "list where each non-default value came from")
	return cmd
}

func redact(cfg config.RuntimeConfig) config.RuntimeConfig {
	if cfg.Reasoning.APIKey != "" {
		cfg.Reasoning.APIKey = redacted
	}
	if cfg.Tools.TavilyAPIKey != "" {
		cfg.Tools.TavilyAPIKey = redacted
	}
	return cfg
}
