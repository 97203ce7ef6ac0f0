package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonearm/tonearm/internal/daemon"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tonearm as a systemd user service",
	Long: `Install tonearm as a systemd user service that runs automatically on login.

This command will:
  - Generate a systemd user unit for the tonearm daemon
  - Install it to ~/.config/systemd/user/
  - Enable and start the service with systemctl --user

The daemon will run in the background and serve playback over the
control socket and MPRIS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		unitContent, err := daemon.GenerateUnit(daemon.UnitConfig{
			BinaryPath: binaryPath,
		})
		if err != nil {
			return fmt.Errorf("failed to generate unit: %w", err)
		}

		unitPath, err := daemon.GetUnitPath()
		if err != nil {
			return fmt.Errorf("failed to get unit path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
			return fmt.Errorf("failed to create unit directory: %w", err)
		}

		// Stop a previously installed service before replacing the unit
		if _, err := os.Stat(unitPath); err == nil {
			fmt.Println("Service is already installed. Stopping it first...")
			if err := stopService(); err != nil {
				fmt.Printf("Warning: failed to stop existing service: %v\n", err)
			}
		}

		if err := os.WriteFile(unitPath, []byte(unitContent), 0644); err != nil {
			return fmt.Errorf("failed to write unit file: %w", err)
		}

		fmt.Printf("✓ Installed unit to %s\n", unitPath)

		if err := startService(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}

		fmt.Println("✓ Service enabled and started successfully")
		fmt.Println("\nThe tonearm daemon is now running and will start automatically on login.")
		fmt.Println("\nYou can check the service status with:")
		fmt.Println("  systemctl --user status tonearm")
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  tonearm uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

// startService reloads systemd and enables and starts the service
func startService() error {
	if output, err := exec.Command("systemctl", "--user", "daemon-reload").CombinedOutput(); err != nil {
		return fmt.Errorf("daemon-reload failed: %s", string(output))
	}
	if output, err := exec.Command("systemctl", "--user", "enable", "--now", "tonearm.service").CombinedOutput(); err != nil {
		return fmt.Errorf("enable failed: %s", string(output))
	}
	return nil
}

// stopService disables and stops the service, ignoring a service that
// was never loaded
func stopService() error {
	output, err := exec.Command("systemctl", "--user", "disable", "--now", "tonearm.service").CombinedOutput()
	if err != nil && len(output) > 0 {
		fmt.Printf("Warning: %s\n", string(output))
	}
	return nil
}
