package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Agronaut41/admin-cc/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		logLevel string
		output   string
	)

	cmd := &cobra.Command{
		Use:           "admincc",
		Short:         "admincc stores, serves and recompresses the images of the cacamba admin",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, output)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return validateOutput(output)
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &output),
		newIngestCmd(cfg, &output),
		newRecompressCmd(cfg, &output),
		newBlobsCmd(cfg, &output),
		newConfigCmd(cfg, &output),
	)

	return cmd
}
