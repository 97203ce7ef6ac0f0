package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current playback state",
	Long:  `Show the daemon's current playback state, item, and position.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&controlSocketPath, "socket", "", "Control socket path (default: runtime dir)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("State:    %s\n", status.State)
	if status.ItemID != "" {
		fmt.Printf("Item:     %s\n", status.ItemID)
	}
	if status.PositionMS >= 0 {
		pos := time.Duration(status.PositionMS) * time.Millisecond
		fmt.Printf("Position: %s\n", pos.Round(time.Second))
	}
	if status.Error != "" {
		fmt.Printf("Error:    %s\n", status.Error)
	}
	fmt.Printf("Actions:  %s\n", strings.Join(status.Actions, ", "))
	return nil
}
