// ipmap maps Matter devices registered in Home Assistant to the IP
// addresses of the bridge devices that carry them.
//
// Usage:
//
//	ipmap run      fetch the inventory once, write the reports and exit
//	ipmap serve    keep the latest mapping behind an HTTP API and refresh it
//	ipmap version  print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/matter-ipmap/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar names the environment variable holding the config path.
const configEnvVar = "IPMAP_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ipmap",
		Short:         "Map Matter devices to bridge IP addresses via Home Assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before the config")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ipmap %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}

// loadConfig loads the .env file and then the configuration. overrides
// carry command-line flags.
func (o *rootOptions) loadConfig(overrides ...func(*config.Config)) (*config.Config, string, error) {
	if o.envFile != "" {
		if err := config.LoadEnvFile(o.envFile); err != nil {
			return nil, "", err
		}
	}

	path, err := getConfigPath(o.configPath)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(path, overrides...)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// getConfigPath resolves the config file: the flag, then IPMAP_CONFIG, then
// the default path. A missing default file is not an error; configuration
// then comes from the environment alone.
func getConfigPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path, nil
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("checking %s: %w", defaultConfigPath, err)
	}
	return defaultConfigPath, nil
}
