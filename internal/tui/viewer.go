package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wecanfarm/wecanfarm/internal/report"
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabDetections
	tabMarket
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Detections", "Marketplace"}

// Viewer is the Bubble Tea model for browsing a saved report.
type Viewer struct {
	report    *report.Report
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	// Detections tab: cursor position and expanded set
	cursor   int
	expanded map[int]bool
}

// NewViewer creates a viewer for r loaded from filename.
func NewViewer(r *report.Report, filename string) Viewer {
	return Viewer{
		report:   r,
		filename: filepath.Base(filename),
		expanded: make(map[int]bool),
	}
}

func (m Viewer) Init() tea.Cmd { return nil }

func (m Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabDetections {
				m.sortAsc = !m.sortAsc
				m.cursor = 0
				m.expanded = make(map[int]bool)
				m.rebuild(tabDetections)
				m.viewports[tabDetections].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabDetections && m.cursor > 0 {
				m.cursor--
				m.rebuild(tabDetections)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabDetections && m.cursor < len(m.report.Detections)-1 {
				m.cursor++
				m.rebuild(tabDetections)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabDetections && len(m.report.Detections) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.rebuild(tabDetections)
				return m, nil
			}
		}
		if !m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Viewer) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  wecanfarm report  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	if m.activeTab == tabDetections {
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  enter details  s sort (" + dir + ")"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow,
		m.viewports[m.activeTab].View(), statusBar(m.width, hint, pct))
}

func (m *Viewer) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := max(m.height-3, 1)
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Viewer) rebuild(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

func (m *Viewer) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabDetections:
		return m.renderDetections()
	case tabMarket:
		return m.renderMarket()
	}
	return ""
}

func (m *Viewer) renderSummary() string {
	meta, sum := m.report.Meta, m.report.Summary
	var sb strings.Builder
	sb.WriteString(heading("Report"))
	row(&sb, "User:", fmt.Sprintf("%s (#%d)", meta.User, meta.UserID))
	if meta.Role != "" {
		row(&sb, "Role:", meta.Role)
	}
	if meta.Server != "" {
		row(&sb, "Server:", meta.Server)
	}
	row(&sb, "Generated:", meta.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	sb.WriteString(heading("Crop health"))
	row(&sb, "Analyses:", fmt.Sprintf("%d", sum.Total))
	row(&sb, "Healthy:", healthyStyle.Render(fmt.Sprintf("%d", sum.Healthy)))
	row(&sb, "Need attention:", unhealthyStyle.Render(fmt.Sprintf("%d", sum.Unhealthy)))
	if sum.Attention {
		sb.WriteString("\n" + unhealthyStyle.Render("  Some crops need attention.") + "\n")
	}
	row(&sb, "Listings:", fmt.Sprintf("%d", len(m.report.Listings)))
	return sb.String()
}

// detections returns the entries in display order.
func (m *Viewer) detections() []report.Entry {
	entries := make([]report.Entry, len(m.report.Detections))
	copy(entries, m.report.Detections)
	if m.sortAsc {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].CapturedAt.Before(entries[j].CapturedAt) })
	} else {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].CapturedAt.After(entries[j].CapturedAt) })
	}
	return entries
}

func (m *Viewer) renderDetections() string {
	entries := m.detections()
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Detections (%d)", len(entries))))
	if len(entries) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, e := range entries {
		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[i] {
			toggle = dimStyle.Render("  ▼ ")
		}
		line := fmt.Sprintf("%s%s  %-14s %s", toggle,
			timeStyle.Render(e.CapturedAt.Format("01-02 15:04")), e.CropType, statusBadge(e.DiseaseStatus, e.Healthy))
		if i == m.cursor {
			line = focusedLabelStyle.Background(lipgloss.Color("237")).Width(max(m.width-2, 1)).Render(line)
		}
		sb.WriteString(line + "\n")
		if m.expanded[i] {
			var detail strings.Builder
			row(&detail, "Disease conf.:", percent(e.DiseaseConfidence))
			row(&detail, "Model conf.:", percent(e.ModelConfidence))
			if e.Label != "" {
				row(&detail, "Label:", e.Label)
			}
			row(&detail, "Record:", dimStyle.Render(e.ID))
			sb.WriteString(detail.String())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Viewer) renderMarket() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Marketplace (%d)", len(m.report.Listings))))
	if len(m.report.Listings) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, l := range m.report.Listings {
		name := l.Name
		if l.Organic {
			name = organicStyle.Render(name)
		}
		sb.WriteString(bullet(fmt.Sprintf("%s  %s KRW/%s  %s left  %s",
			name, l.Price, l.Unit, l.Quantity, dimStyle.Render("by "+l.Seller))))
	}
	return sb.String()
}

// RunViewer starts the report viewer.
func RunViewer(r *report.Report, filename string) error {
	p := tea.NewProgram(NewViewer(r, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
