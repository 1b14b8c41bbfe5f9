package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wecanfarm/wecanfarm/internal/report"
	"github.com/wecanfarm/wecanfarm/internal/tui"
)

var plainOutput bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Work with saved session reports",
}

var reportViewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View a session report file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}

		r, err := report.ParserFor(data).Parse(data)
		if err != nil {
			return err
		}

		if plainOutput || !interactive() {
			printReport(cmd.OutOrStdout(), r)
			return nil
		}
		return tui.RunViewer(r, path)
	},
}

// printReport writes a plain-text summary of r.
func printReport(w io.Writer, r *report.Report) {
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  User:       %s (#%d, %s)\n", r.Meta.User, r.Meta.UserID, r.Meta.Role)
	if r.Meta.Server != "" {
		fmt.Fprintf(w, "  Server:     %s\n", r.Meta.Server)
	}
	fmt.Fprintf(w, "  Generated:  %s\n", r.Meta.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  Detections: %d (%d healthy, %d unhealthy)\n", r.Summary.Total, r.Summary.Healthy, r.Summary.Unhealthy)
	if r.Summary.Attention {
		fmt.Fprintln(w, "  Some plants need attention.")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Detections")
	if len(r.Detections) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		for _, e := range r.Detections {
			fmt.Fprintf(w, "  [%s] %s: %s %.0f%%\n",
				e.CapturedAt.Format(time.DateTime), e.CropType, e.DiseaseStatus, e.DiseaseConfidence*100)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Marketplace")
	if len(r.Listings) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		for _, l := range r.Listings {
			fmt.Fprintf(w, "  %s, %s won/%s from %s\n", l.Name, l.Price, l.Unit, l.Seller)
		}
	}
}

func init() {
	reportViewCmd.Flags().BoolVar(&plainOutput, "plain", false, "print plain text instead of opening the viewer")
	reportCmd.AddCommand(reportViewCmd)
	rootCmd.AddCommand(reportCmd)
}
