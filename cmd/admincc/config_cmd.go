package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Agronaut41/admin-cc/internal/config"
)

// configEntry is one key of the effective configuration.
type configEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

func newConfigCmd(cfg *config.Config, output *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg, output))
	cmd.AddCommand(newConfigListCmd(cfg, output))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigGetCmd(cfg *config.Config, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a config key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := lookupConfigEntry(cfg, args[0])
			if err != nil {
				return err
			}
			if !isTextOutput(*output) {
				return writeStructured(*output, entry)
			}
			return writePlain("%s\n", entry.Value)
		},
	}
}

func newConfigListCmd(cfg *config.Config, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every config key with its effective value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]configEntry, 0, len(config.AllowedKeys()))
			for _, key := range config.AllowedKeys() {
				entry, err := lookupConfigEntry(cfg, key)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
			}
			if !isTextOutput(*output) {
				return writeStructured(*output, entries)
			}
			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Key", "Value"})
			for _, e := range entries {
				tw.AppendRow(table.Row{e.Key, e.Value})
			}
			return writePlain("%s\n", tw.Render())
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a config value to the project or global file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !config.IsAllowedKey(key) {
				return unknownConfigKey(key)
			}

			path, err := config.ProjectPath()
			if global {
				path, err = config.GlobalPath()
			}
			if err != nil {
				return err
			}

			if err := config.SetKey(path, key, value); err != nil {
				return err
			}
			return writePlain("%s = %s (%s)\n", key, value, path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.admincc.toml)")
	return cmd
}

func lookupConfigEntry(cfg *config.Config, key string) (configEntry, error) {
	if !config.IsAllowedKey(key) {
		return configEntry{}, unknownConfigKey(key)
	}
	value, err := cfg.Get(key)
	if err != nil {
		return configEntry{}, err
	}
	return configEntry{Key: key, Value: value}, nil
}

func unknownConfigKey(key string) error {
	return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
}
