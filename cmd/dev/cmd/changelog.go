package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// changelogScopes are the commit scopes of the repository, one per package.
var changelogScopes = []string{
	"as7265x", "acquisition", "telemetry", "hud", "indicator", "web",
	"config", "i2c", "adapter", "gpio", "cli", "dev",
}

// scopePath returns the directory whose history makes up a scope.
func scopePath(scope string) string {
	switch scope {
	case "cli":
		return "cmd/spectral"
	case "dev":
		return "cmd/dev"
	default:
		return scope
	}
}

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate or update CHANGELOG.md from git history",
		Long: `Generate CHANGELOG.md using git-chglog from conventional commits:
  <type>(<scope>): <description>

Supported types: feat, fix, docs, refactor, test, perf, build, ci, chore
Scopes: ` + strings.Join(changelogScopes, ", ") + `

Examples:
  # Generate full changelog
  dev changelog

  # Generate for next version
  dev changelog --next v0.2.0

  # Only commits touching the sensor driver package
  dev changelog --scope as7265x --output SENSOR.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("could not get output flag: %w", err)
			}
			nextVersion, err := cmd.Flags().GetString("next")
			if err != nil {
				return fmt.Errorf("could not get next flag: %w", err)
			}
			tag, err := cmd.Flags().GetString("tag")
			if err != nil {
				return fmt.Errorf("could not get tag flag: %w", err)
			}
			scope, err := cmd.Flags().GetString("scope")
			if err != nil {
				return fmt.Errorf("could not get scope flag: %w", err)
			}

			if _, err := exec.LookPath("git-chglog"); err != nil {
				slog.Error("git-chglog not found in PATH")
				slog.Info("Install it with:")
				slog.Info("  go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}

			chglogArgs, err := changelogArgs(output, nextVersion, tag, scope)
			if err != nil {
				return err
			}

			slog.Info("Running git-chglog", "args", chglogArgs)
			gitChglog := exec.CommandContext(cmd.Context(), "git-chglog", chglogArgs...)
			gitChglog.Stdout = os.Stdout
			gitChglog.Stderr = os.Stderr
			if err := gitChglog.Run(); err != nil {
				slog.Error("Failed to generate changelog", "error", err)
				return fmt.Errorf("failed to generate changelog: %w", err)
			}

			slog.Info("Changelog generated successfully", "output", output)
			return nil
		},
	}

	cmd.Flags().String("next", "", "Next version tag (e.g., v0.2.0)")
	cmd.Flags().String("output", "CHANGELOG.md", "Output file path")
	cmd.Flags().String("tag", "", "Generate changelog for specific tag")
	cmd.Flags().String("scope", "", "Only include commits of one scope")

	return cmd
}

func changelogArgs(output, nextVersion, tag, scope string) ([]string, error) {
	if output == "" {
		output = "CHANGELOG.md"
	}
	args := []string{"--output", output}
	if nextVersion != "" {
		args = append(args, "--next-tag", nextVersion)
	}
	if scope != "" {
		known := false
		for _, s := range changelogScopes {
			known = known || s == scope
		}
		if !known {
			return nil, fmt.Errorf("unknown scope %q, expected one of %s", scope, strings.Join(changelogScopes, ", "))
		}
		args = append(args, "--path", scopePath(scope))
	}
	if tag != "" {
		args = append(args, tag)
	}
	return args, nil
}
