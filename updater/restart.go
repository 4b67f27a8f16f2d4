package updater

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"
)

// restartCommands returns the commands that restart serviceName on this OS.
func restartCommands(goos, serviceName string) ([][]string, error) {
	switch goos {
	case "windows":
		return [][]string{
			{"sc", "stop", serviceName},
			{"sc", "start", serviceName},
		}, nil
	case "linux":
		return [][]string{
			{"systemctl", "restart", serviceName},
		}, nil
	default:
		return nil, fmt.Errorf("service restart not supported on %s", goos)
	}
}

// RestartService restarts the installed service after an update. The
// commands run after a short delay so the caller can finish its work.
func RestartService(serviceName string, logger *slog.Logger) error {
	cmds, err := restartCommands(runtime.GOOS, serviceName)
	if err != nil {
		return err
	}

	logger.Info("Scheduling service restart", slog.String("service", serviceName))

	go func() {
		time.Sleep(2 * time.Second)

		for i, args := range cmds {
			if i > 0 {
				// Wait for service to stop
				time.Sleep(3 * time.Second)
			}
			if err := exec.Command(args[0], args[1:]...).Run(); err != nil {
				logger.Warn("Restart command failed", slog.Any("cmd", args), slog.Any("error", err))
			}
		}
	}()

	return nil
}
