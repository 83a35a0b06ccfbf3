// TEM emulator - simulated microscope and camera command server
//
// This is the main entry point. Each simulated device is served on its own
// TCP port; camera frames are handed over through a shared memory segment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/emulator.yaml"

// configEnv names the environment variable consulted when --config is not given.
const configEnv = "EMULATOR_CONFIG"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "emulator",
		Short: "Simulated TEM instrument and camera command server",
		Long: `emulator hosts a simulated microscope and camera, each on its own TCP port.

Requests are length-prefixed JSON or CBOR frames. Camera frames are written
to a shared memory segment and answered with a descriptor.

The configuration file is taken from --config, then $EMULATOR_CONFIG, then
configs/emulator.yaml. A missing default file means built-in defaults.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if flags.verbose {
				cfg.Logging.Level = "debug"
			}
			return run(cmd.Context(), cfg, path)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "configuration file (default $"+configEnv+" or "+defaultConfigPath+")")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newVersionCmd(), newPingCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emulator %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
