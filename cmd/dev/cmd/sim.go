package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// SimCmd runs the daemon against the simulated sensor.
func SimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run spectral against the simulated sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, err := cmd.Flags().GetString("listen")
			if err != nil {
				return fmt.Errorf("could not get listen flag: %w", err)
			}
			broker, err := cmd.Flags().GetString("broker")
			if err != nil {
				return fmt.Errorf("could not get broker flag: %w", err)
			}
			runArgs := []string{"run", "./cmd/spectral", "--verbose", "--adapter", "sim", "run", "--show-display", "--listen", listen}
			if broker != "" {
				runArgs = append(runArgs, "--broker", broker)
			}
			slog.Info("Running simulated daemon", "args", runArgs)
			sim := exec.CommandContext(cmd.Context(), "go", runArgs...)
			sim.Stdout = os.Stdout
			sim.Stderr = os.Stderr
			if err := sim.Run(); err != nil {
				return fmt.Errorf("simulated daemon failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("listen", ":8080", "web page address")
	cmd.Flags().String("broker", "", "MQTT broker url")
	return cmd
}
