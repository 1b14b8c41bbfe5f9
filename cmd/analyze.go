package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	analyzeJSON   bool
	analyzeReport string
	analyzeFormat string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <photo>...",
	Short: "Check plant photos for disease",
	Long: "Logs in, sends each photo to the analysis server in turn and prints\n" +
		"what was found. Photos that fail are reported and skipped.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		a, err := newApp(logger)
		if err != nil {
			return err
		}
		if _, err := signIn(cmd.Context(), a); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var results []analysisJSON
		failed := 0
		for _, path := range args {
			res, err := a.AnalyzeFile(cmd.Context(), path)
			if err != nil {
				failed++
				logger.Debug().Err(err).Str("path", path).Msg("analyze failed")
				if analyzeJSON {
					results = append(results, analysisJSON{Path: path, Error: userError{err}.Error()})
				} else {
					fmt.Fprintf(out, "%s\n  %s\n", path, userError{err})
				}
				continue
			}
			if analyzeJSON {
				results = append(results, analysisJSON{
					Path:       path,
					Total:      res.Response.TotalDetections,
					Detections: res.Response.Detections,
				})
				continue
			}
			printOutcome(out, res)
		}
		if analyzeJSON {
			if err := writeJSON(out, results); err != nil {
				return err
			}
		}

		if analyzeReport != "" {
			if err := writeReport(a, analyzeReport, reportFormat(analyzeFormat)); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			cmd.PrintErrf("Report written to %s\n", analyzeReport)
		}
		if failed == len(args) {
			return fmt.Errorf("no photo could be analyzed")
		}
		return nil
	},
}

func init() {
	addCredentialFlags(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print results as JSON")
	analyzeCmd.Flags().StringVar(&analyzeReport, "report", "", "write a session report to this file")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "", "report format: markdown or json (default from profile)")
	rootCmd.AddCommand(analyzeCmd)
}
