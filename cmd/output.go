package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/history"
	"github.com/wecanfarm/wecanfarm/internal/report"
)

// printOutcome writes one analysis result in plain text.
func printOutcome(w io.Writer, out app.Outcome) {
	fmt.Fprintf(w, "%s\n", out.Source)
	if out.Empty {
		fmt.Fprintln(w, "  No crops detected. Try a closer, well-lit photo.")
		return
	}
	for _, d := range out.Response.Detections {
		status := "healthy"
		if !history.IsHealthy(d.DiseaseStatus) {
			status = "unhealthy"
		}
		fmt.Fprintf(w, "  %-14s %-22s %3.0f%%  (%s, detector %.0f%%)\n",
			d.CropType, d.DiseaseStatus, d.DiseaseConfidence*100, status, d.ModelConfidence*100)
	}
	fmt.Fprintf(w, "  %d detected, %d healthy\n", len(out.Response.Detections), out.Healthy())
}

// analysisJSON is the --json shape of one analyzed photo.
type analysisJSON struct {
	Path       string `json:"path"`
	Total      int    `json:"total_detections"`
	Detections any    `json:"detections"`
	Error      string `json:"error,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportFormat picks the report format: flag, then profile, then markdown.
func reportFormat(flag string) string {
	if flag != "" {
		return flag
	}
	if activeProfile != nil && activeProfile.ReportFormat != "" {
		return activeProfile.ReportFormat
	}
	return "markdown"
}

// writeReport renders the session report for a into path.
func writeReport(a *app.App, path, format string) error {
	rep, err := report.Build(a, time.Now())
	if err != nil {
		return err
	}
	r, err := report.RendererFor(format)
	if err != nil {
		return err
	}
	data, err := r.Render(rep)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
