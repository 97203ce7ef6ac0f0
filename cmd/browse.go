package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// browseCmd represents the browse command
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List the items in the catalog",
	Long: `List the items in the daemon's catalog.

Each line shows the item id to pass to 'tonearm play', along with the
track metadata. The first browse after daemon startup may block while
the catalog is fetched.`,
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringVar(&controlSocketPath, "socket", "", "Control socket path (default: runtime dir)")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	root, err := client.Root()
	if err != nil {
		return err
	}

	items, err := client.Children(root)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No items available.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t#\tTITLE\tARTIST\tALBUM\tDURATION")
	for _, item := range items {
		dur := time.Duration(item.DurationMS) * time.Millisecond
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			item.ID, item.TrackNumber, item.Title, item.Artist, item.Album, dur)
	}
	return w.Flush()
}
