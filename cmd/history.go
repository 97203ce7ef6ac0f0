package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent playback history",
	Long:  `Show the most recent plays recorded by the daemon, newest first.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of plays to show")
	historyCmd.Flags().StringVar(&controlSocketPath, "socket", "", "Control socket path (default: runtime dir)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	plays, err := client.History(historyLimit)
	if err != nil {
		return err
	}
	if len(plays) == 0 {
		fmt.Println("No plays recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTITLE\tARTIST\tPLAYED\tCOMPLETED")
	for _, p := range plays {
		when := time.Unix(p.StartedAt, 0).Format("2006-01-02 15:04")
		played := (time.Duration(p.PlayedMS) * time.Millisecond).Round(time.Second)
		completed := ""
		if p.Completed {
			completed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", when, p.Title, p.Artist, played, completed)
	}
	return w.Flush()
}
