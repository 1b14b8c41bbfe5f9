package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAnalyzeCommand(t *testing.T) {
	home := isolate(t)
	ts := backend(t)
	photo := filepath.Join(home, "leaf.png")
	writePNG(t, photo)

	out, err := executeCommand(rootCmd, "analyze", photo, "--server", ts.URL, "-u", "kim", "--password", "secret")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	for _, want := range []string{photo, "tomato", "late blight", "unhealthy", "1 detected, 0 healthy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeSkipsBadPhotos(t *testing.T) {
	home := isolate(t)
	ts := backend(t)
	good := filepath.Join(home, "leaf.png")
	writePNG(t, good)
	bad := filepath.Join(home, "notes.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "analyze", bad, good, "--server", ts.URL, "-u", "kim", "--password", "secret")
	if err != nil {
		t.Fatalf("one good photo should succeed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "tomato") {
		t.Errorf("good photo not reported:\n%s", out)
	}

	_, err = executeCommand(rootCmd, "analyze", bad, "--server", ts.URL, "-u", "kim", "--password", "secret")
	if err == nil {
		t.Fatal("expected an error when every photo fails")
	}
}

func TestAnalyzeJSON(t *testing.T) {
	home := isolate(t)
	ts := backend(t)
	photo := filepath.Join(home, "leaf.png")
	writePNG(t, photo)

	out, err := executeCommand(rootCmd, "analyze", photo, "--json", "--server", ts.URL, "-u", "kim", "--password", "secret")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	start := strings.Index(out, "[")
	if start == -1 {
		t.Fatalf("no JSON in output: %s", out)
	}
	var results []struct {
		Path       string `json:"path"`
		Total      int    `json:"total_detections"`
		Detections []struct {
			CropType string `json:"crop_type"`
		} `json:"detections"`
	}
	if err := json.NewDecoder(strings.NewReader(out[start:])).Decode(&results); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(results) != 1 || results[0].Total != 1 || results[0].Detections[0].CropType != "tomato" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestAnalyzeReportThenView(t *testing.T) {
	home := isolate(t)
	ts := backend(t)
	photo := filepath.Join(home, "leaf.png")
	writePNG(t, photo)
	reportPath := filepath.Join(home, "reports", "today.md")

	out, err := executeCommand(rootCmd, "analyze", photo, "--report", reportPath,
		"--server", ts.URL, "-u", "kim", "--password", "secret")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Fatalf("report not written: %v", err)
	}

	out, err = executeCommand(rootCmd, "report", "view", reportPath, "--plain")
	if err != nil {
		t.Fatalf("report view: %v\n%s", err, out)
	}
	sections := []string{"## Summary", "## Detections", "## Marketplace"}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		if idx <= last {
			t.Fatalf("section %q missing or out of order:\n%s", s, out)
		}
		last = idx
	}
	for _, want := range []string{"kim (#7, FARMER)", "1 (0 healthy, 1 unhealthy)", "tomato: late blight 60%", "Cherry tomato (organic)"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportViewMissingFile(t *testing.T) {
	home := isolate(t)

	_, err := executeCommand(rootCmd, "report", "view", filepath.Join(home, "nope.md"), "--plain")
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestReportViewRejectsGarbage(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "junk.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := executeCommand(rootCmd, "report", "view", path, "--plain")
	if err == nil || !strings.Contains(err.Error(), "failed to parse JSON report") {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestWatchCommand(t *testing.T) {
	home := isolate(t)
	ts := backend(t)
	dir := filepath.Join(home, "captures")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	staged := filepath.Join(home, "leaf.png")
	writePNG(t, staged)
	go func() {
		time.Sleep(300 * time.Millisecond)
		if err := os.Rename(staged, filepath.Join(dir, "leaf.png")); err != nil {
			t.Errorf("drop photo: %v", err)
		}
	}()

	out, err := executeCommand(rootCmd, "watch", dir, "--for", "2s", "--settle", "100ms",
		"--server", ts.URL, "-u", "kim", "--password", "secret")
	if err != nil {
		t.Fatalf("watch: %v\n%s", err, out)
	}
	if !strings.Contains(out, "late blight") {
		t.Errorf("dropped photo not analyzed:\n%s", out)
	}
	if !strings.Contains(out, "1 photo(s) analyzed") {
		t.Errorf("missing stop summary:\n%s", out)
	}
}

func TestMarketCommand(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "market")
	if err != nil {
		t.Fatalf("market: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Featured") || !strings.Contains(out, "Cherry tomato (organic)") || !strings.Contains(out, "Basil") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestMarketWithoutSeed(t *testing.T) {
	isolate(t)
	t.Setenv("WECANFARM_SEED_MARKET", "false")

	out, err := executeCommand(rootCmd, "market")
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if !strings.Contains(out, "No listings yet.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
