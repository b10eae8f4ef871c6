package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// sourceDirs are checked by fmt. Unlike the go tool, gofmt does not skip
// underscore directories, so packages are listed explicitly.
var sourceDirs = []string{
	".", "acquisition", "adapter", "as7265x", "cmd", "config", "gpio",
	"hud", "i2c", "indicator", "snsctx", "telemetry", "web",
}

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		Long: `Run unit tests with gotestsum. With --race the suite runs through
go test -race instead, which covers the bus locks shared by the sensor,
the LED expander and the web handlers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			race, err := cmd.Flags().GetBool("race")
			if err != nil {
				return fmt.Errorf("could not get race flag: %w", err)
			}
			if race {
				return goCmd(cmd, "test", "-race", "-count=1", "./...")
			}
			err = test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("race", false, "run with the race detector")
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run gofmt check and linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(); err != nil {
				return err
			}
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func FmtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fmt",
		Short: "List source files that are not gofmt-clean",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat()
		},
	}
}

// IntegrationTestCmd runs the integration suite, then a short acquisition
// against the simulated sensor through the real CLI.
func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			slog.Info("Reading frames from the simulated sensor")
			return goCmd(cmd, "run", "./cmd/spectral", "--adapter", "sim", "read", "--count", "3", "--interval", "100ms", "--format", "json")
		},
	}
	return cmd
}

func checkFormat() error {
	var files []string
	for _, dir := range sourceDirs {
		args := []string{"-l", dir}
		if dir == "." {
			args = []string{"-l", "bus.go", "display.go"}
		}
		out, err := exec.Command("gofmt", args...).Output()
		if err != nil {
			return fmt.Errorf("gofmt failed on %s: %w", dir, err)
		}
		for _, f := range strings.Split(string(bytes.TrimSpace(out)), "\n") {
			if f != "" {
				files = append(files, f)
			}
		}
	}
	if len(files) > 0 {
		for _, f := range files {
			slog.Error("not gofmt-clean", "file", f)
		}
		return fmt.Errorf("%d files need gofmt", len(files))
	}
	slog.Info("Sources are gofmt-clean")
	return nil
}

func goCmd(cmd *cobra.Command, args ...string) error {
	slog.Info("Running go", "args", args)
	c := exec.CommandContext(cmd.Context(), "go", args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("go %s failed: %w", args[0], err)
	}
	return nil
}
