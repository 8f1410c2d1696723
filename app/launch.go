package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"go2tv.app/screenrec/internal/processutil"
)

// LaunchUI starts the UI binary at path and returns once it exits. The
// child inherits the environment, so it dials the same bus name.
func LaunchUI(ctx context.Context, path string, logger *slog.Logger) error {
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	processutil.HideConsoleWindow(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch ui %s: %w", path, err)
	}
	logger.Info("ui launched", "path", path, "pid", cmd.Process.Pid)
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ui exited: %w", err)
	}
	logger.Info("ui exited")
	return nil
}
