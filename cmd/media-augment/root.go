package main

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"media-augment-go/internal/app"
)

type commandContext struct {
	configFlag *string
	levelFlag  *string
}

// open wires the application. Commands that print results keep logs on stderr.
func (c *commandContext) open(withProgress bool) (*app.App, error) {
	opts := app.Options{
		ConfigPath: strings.TrimSpace(*c.configFlag),
		LogLevel:   strings.TrimSpace(*c.levelFlag),
		LogOutput:  os.Stderr,
	}
	if withProgress && isatty.IsTerminal(os.Stderr.Fd()) {
		opts.Progress = os.Stderr
	}
	return app.New(opts)
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var levelFlag string

	ctx := &commandContext{configFlag: &configFlag, levelFlag: &levelFlag}

	rootCmd := &cobra.Command{
		Use:           "media-augment",
		Short:         "Add download controls to site pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))

	return rootCmd
}
