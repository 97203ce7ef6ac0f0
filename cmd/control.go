package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonearm/tonearm/internal/config"
	"github.com/tonearm/tonearm/internal/control"
)

var controlSocketPath string

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [item-id]",
	Short: "Start or resume playback",
	Long: `Start or resume playback on the running daemon.

Without arguments, resumes the current item. With an item id (from
'tonearm browse'), starts playback of that item.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

// pauseCmd represents the pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Long:  `Pause playback on the running daemon.`,
	RunE:  runPause,
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback",
	Long:  `Stop playback on the running daemon and release playback resources.`,
	RunE:  runStop,
}

// seekCmd represents the seek command
var seekCmd = &cobra.Command{
	Use:   "seek <position>",
	Short: "Seek within the current item",
	Long: `Seek to an absolute position within the current item.

The position is a Go duration string, e.g. '90s' or '1m30s'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

func init() {
	for _, c := range []*cobra.Command{playCmd, pauseCmd, stopCmd, seekCmd} {
		c.Flags().StringVar(&controlSocketPath, "socket", "", "Control socket path (default: runtime dir)")
		rootCmd.AddCommand(c)
	}
}

// dialDaemon connects to the daemon's control socket.
func dialDaemon() (*control.Client, error) {
	path := controlSocketPath
	if path == "" {
		path = config.DefaultSocketPath()
	}

	client, err := control.Dial(path)
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	return client, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		return client.PlayFromID(args[0])
	}
	return client.Play()
}

func runPause(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Pause()
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Stop()
}

func runSeek(cmd *cobra.Command, args []string) error {
	pos, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("invalid position %q: %w", args[0], err)
	}
	if pos < 0 {
		return fmt.Errorf("position must not be negative")
	}

	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Seek(pos)
}
