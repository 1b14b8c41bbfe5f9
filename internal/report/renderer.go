package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	versionSentinel = "<!-- wecanfarm-report-version: 1 -->"
	dataPrefix      = "<!-- wecanfarm-data: "
	dataSuffix      = " -->"
)

// Renderer serializes a Report to bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// RendererFor returns the renderer for format ("markdown" or "json").
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "markdown", "md", "":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q (want markdown or json)", format)
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(rep *Report) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

// MarkdownRenderer renders a Report as readable Markdown with an embedded
// base64 JSON payload so the file can be parsed back losslessly.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(rep *Report) ([]byte, error) {
	jsonBytes, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Crop report: %s (%s)\n\n", rep.Meta.User, rep.Meta.GeneratedAt.Format("2006-01-02 15:04 MST"))

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Analyses recorded: %d\n", rep.Summary.Total)
	fmt.Fprintf(&sb, "- Healthy: %d\n", rep.Summary.Healthy)
	fmt.Fprintf(&sb, "- Needs attention: %d\n", rep.Summary.Unhealthy)
	if rep.Meta.Role != "" {
		fmt.Fprintf(&sb, "- Role: %s\n", rep.Meta.Role)
	}
	sb.WriteString("\n")

	sb.WriteString("## Detections\n\n")
	if len(rep.Detections) == 0 {
		sb.WriteString("_No detections recorded._\n")
	} else {
		sb.WriteString("| Captured | Crop | Status | Disease conf. | Model conf. |\n")
		sb.WriteString("|----------|------|--------|---------------|-------------|\n")
		for _, e := range rep.Detections {
			fmt.Fprintf(&sb, "| %s | %s | %s | %.0f%% | %.0f%% |\n",
				e.CapturedAt.Format("2006-01-02 15:04"),
				cell(e.CropType),
				cell(e.DiseaseStatus),
				e.DiseaseConfidence*100,
				e.ModelConfidence*100,
			)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Marketplace\n\n")
	if len(rep.Listings) == 0 {
		sb.WriteString("_No listings._\n")
	} else {
		for _, l := range rep.Listings {
			fmt.Fprintf(&sb, "- %s by %s: %s KRW / %s, %s available\n",
				oneLine(l.Name), oneLine(l.Seller), oneLine(l.Price), l.Unit, oneLine(l.Quantity))
		}
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}
