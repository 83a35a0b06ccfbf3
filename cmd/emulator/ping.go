package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/tem-emulator/internal/client"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

type pingFlags struct {
	addr    string
	codec   string
	timeout time.Duration
	args    string
}

// newPingCmd sends one operation to a running emulator and prints the
// payload. It is a smoke check, not a general client.
func newPingCmd() *cobra.Command {
	var flags pingFlags

	cmd := &cobra.Command{
		Use:   "ping [operation]",
		Short: "Invoke one operation on a running device port",
		Example: `  emulator ping --addr localhost:5000
  emulator ping --addr localhost:5000 move_to --args '[100, 200]'
  emulator ping --addr localhost:5001 --codec cbor get_camera_dimensions`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			operation := "name"
			if len(positional) == 1 {
				operation = positional[0]
			}
			return ping(cmd, flags, operation)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "localhost:5000", "device address")
	cmd.Flags().StringVar(&flags.codec, "codec", "json", "body encoding: json or cbor")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "dial and call timeout")
	cmd.Flags().StringVar(&flags.args, "args", "", "positional arguments as a JSON array")
	return cmd
}

func ping(cmd *cobra.Command, flags pingFlags, operation string) error {
	codec, err := wire.CodecByName(flags.codec)
	if err != nil {
		return err
	}

	var args []any
	if flags.args != "" {
		if err := json.Unmarshal([]byte(flags.args), &args); err != nil {
			return fmt.Errorf("--args must be a JSON array: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	c, err := client.Dial(ctx, flags.addr, client.Options{Codec: codec, Timeout: flags.timeout})
	if err != nil {
		return err
	}
	defer c.Disconnect() //nolint:errcheck // Best-effort goodbye

	start := time.Now()
	payload, err := c.Call(ctx, operation, args, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		out = []byte(fmt.Sprintf("%v", payload))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", operation, out, time.Since(start).Round(time.Microsecond))
	return nil
}
