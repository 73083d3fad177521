package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// devServices are the backing services the fill service and worker expect
// when running against docker-compose.yml.
var devServices = []string{"postgres", "redis", "minio"}

func newStackCmd(a *app) *cobra.Command {
	var composeFile string
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage the local Postgres, Redis and MinIO stack",
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use")
	compose := func(cmd *cobra.Command, args ...string) error {
		return a.runCommand(cmd.Context(), "docker", append([]string{"compose", "-f", composeFile}, args...)...)
	}

	var detach bool
	up := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the stack (default: " + strings.Join(devServices, ", ") + ")",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"up"}
			if detach {
				composeArgs = append(composeArgs, "-d")
			}
			if len(args) == 0 {
				args = devServices
			}
			return compose(cmd, append(composeArgs, args...)...)
		},
	}
	up.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")

	var removeVolumes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"down"}
			if removeVolumes {
				composeArgs = append(composeArgs, "-v")
			}
			return compose(cmd, composeArgs...)
		},
	}
	down.Flags().BoolVar(&removeVolumes, "volumes", false, "Remove stack volumes")

	var follow bool
	logs := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Tail logs from stack services",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"logs"}
			if follow {
				composeArgs = append(composeArgs, "-f")
			}
			return compose(cmd, append(composeArgs, args...)...)
		},
	}
	logs.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")

	cmd.AddCommand(up, down, logs)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the service binaries from source",
	}
	for _, svc := range []struct{ name, path string }{
		{"server", "./cmd/server"},
		{"worker", "./cmd/worker"},
	} {
		svc := svc
		cmd.AddCommand(&cobra.Command{
			Use:   svc.name,
			Short: fmt.Sprintf("go run %s", svc.path),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runCommand(cmd.Context(), "go", append([]string{"run", svc.path}, args...)...)
			},
		})
	}
	return cmd
}

func (a *app) runCommand(ctx context.Context, name string, args ...string) error {
	a.logger.Debug("exec", zap.String("cmd", name), zap.Strings("args", args))
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
