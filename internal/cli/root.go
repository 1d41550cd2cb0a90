// Package cli is the kiosk-client command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"arenakiosk/internal/config"
)

const defaultEnvFile = ".env"

type options struct {
	configPath string
	envFile    string
}

// load reads the env file, then the configuration. A missing default env file is ignored.
func (o *options) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || o.envFile != defaultEnvFile {
				return nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
			}
		}
	}
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load()
}

// NewRootCommand builds the kiosk-client command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "kiosk-client",
		Short: "Kiosk terminal client for venue devices",
		Long: `kiosk-client runs on a venue terminal. It locks the screen outside paid sessions,
keeps the device's session record up to date and accepts logins from the terminal or the front desk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $KIOSK_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newLoginCommand(opts))
	root.AddCommand(newLogoutCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newVersionCommand(version))
	return root
}

// Execute runs the command line with ctx cancelled on shutdown signals.
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kiosk-client %s\n", version)
		},
	}
}
