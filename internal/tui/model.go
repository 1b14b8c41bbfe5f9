package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/wecanfarm/wecanfarm/internal/api"
	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/history"
	"github.com/wecanfarm/wecanfarm/internal/market"
	"github.com/wecanfarm/wecanfarm/internal/navigator"
	"github.com/wecanfarm/wecanfarm/internal/session"
)

var screenTitles = map[navigator.Screen]string{
	navigator.Onboarding1:     "Welcome",
	navigator.Onboarding2:     "Welcome",
	navigator.Login:           "Log in",
	navigator.Signup:          "Sign up",
	navigator.PlantCheck:      "Plant check",
	navigator.FarmerDashboard: "My farm",
	navigator.Market:          "Market",
	navigator.ProductRegister: "Register product",
}

// Results of background work, delivered back to the UI loop.
type (
	loginMsg struct {
		user session.UserInfo
		err  error
	}
	signupMsg struct {
		res api.RegisterResult
		err error
	}
	analyzeMsg struct {
		out app.Outcome
		err error
	}
)

// modal blocks every key but the acknowledgement. Acknowledging a modal
// with a then event advances the navigator.
type modal struct {
	title string
	body  string
	err   bool
	then  navigator.Event
}

// Model is the root Bubble Tea model of the interactive app.
type Model struct {
	app     *app.App
	ctx     context.Context
	log     zerolog.Logger
	screen  navigator.Screen
	form    *form
	modal   *modal
	busy    bool // a network call is in flight; capture is disabled
	spinner spinner.Model
	body    viewport.Model
	last    *app.Outcome
	width   int
	height  int
	ready   bool
}

// New returns the model positioned on the first onboarding screen.
func New(ctx context.Context, a *app.App, log zerolog.Logger) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = timeStyle
	return Model{
		app:     a,
		ctx:     ctx,
		log:     log,
		screen:  navigator.Start,
		spinner: sp,
	}
}

// Screen returns the current screen.
func (m Model) Screen() navigator.Screen { return m.screen }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	next.refresh()
	return next, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		// title(1) + statusBar(1) = 2 fixed rows
		if !m.ready {
			m.body = viewport.New(m.width, max(m.height-2, 1))
			m.ready = true
		} else {
			m.body.Width = m.width
			m.body.Height = max(m.height-2, 1)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginMsg:
		m.busy = false
		if msg.err != nil {
			m.fail("Login failed", msg.err)
			return m, nil
		}
		m.modal = &modal{
			title: "Welcome, " + msg.user.DisplayName,
			body:  fmt.Sprintf("Signed in as %s (%s).", msg.user.Username, roleLabel(msg.user.Role)),
			then:  navigator.EventLoginSuccess,
		}
		return m, nil

	case signupMsg:
		m.busy = false
		if msg.err != nil {
			m.fail("Sign up failed", msg.err)
			return m, nil
		}
		body := "Your account was created. Please log in."
		if msg.res.Message != "" {
			body = msg.res.Message + "\n" + body
		}
		m.modal = &modal{title: "Account created", body: body, then: navigator.EventSignupSuccess}
		return m, nil

	case analyzeMsg:
		m.busy = false
		if msg.err != nil {
			m.fail("Analysis failed", msg.err)
			return m, nil
		}
		out := msg.out
		m.last = &out
		m.modal = outcomeModal(out)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.modal != nil {
			switch msg.String() {
			case "enter", "esc", " ":
				then := m.modal.then
				m.modal = nil
				if then != "" {
					return m.fire(then)
				}
			}
			return m, nil
		}
		if m.busy {
			return m, nil
		}
		return m.handleKey(msg)
	}

	if m.form != nil {
		return m, m.form.update(msg)
	}
	return m, nil
}

func (m *Model) fail(title string, err error) {
	m.log.Warn().Err(err).Str("screen", string(m.screen)).Msg(strings.ToLower(title))
	m.modal = &modal{title: title, body: userMessage(err), err: true}
}

func userMessage(err error) string {
	if errors.Is(err, app.ErrAnalysisInFlight) {
		return "An analysis is already running. Please wait for it to finish."
	}
	return api.UserMessage(err)
}

func outcomeModal(out app.Outcome) *modal {
	if out.Empty {
		return &modal{title: "No crops detected", body: "Nothing was found in this photo. Try another angle or closer shot."}
	}
	healthy := out.Healthy()
	total := len(out.Response.Detections)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d detected: %d healthy, %d need attention\n\n", total, healthy, total-healthy)
	for _, d := range out.Response.Detections {
		sb.WriteString(fmt.Sprintf("%-14s %s  %s\n", d.CropType,
			statusBadge(d.DiseaseStatus, history.IsHealthy(d.DiseaseStatus)), dimStyle.Render(percent(d.DiseaseConfidence))))
	}
	return &modal{title: "Analysis complete", body: strings.TrimRight(sb.String(), "\n")}
}

func (m Model) role() session.Role {
	if u, ok := m.app.Session().User(); ok {
		return u.Role
	}
	return session.RoleUser
}

// fire moves the navigator and prepares the new screen.
func (m Model) fire(event navigator.Event) (Model, tea.Cmd) {
	next, ok := navigator.Next(m.screen, event, m.role())
	if !ok {
		return m, nil
	}
	if next == navigator.Login && m.app.Session().IsAuthenticated() {
		m.app.Logout()
	}
	m.log.Debug().Str("from", string(m.screen)).Str("event", string(event)).Str("to", string(next)).Msg("navigate")
	m.screen = next
	m.form = formFor(next)
	m.body.GotoTop()
	if next != navigator.PlantCheck {
		m.last = nil
	}
	if m.form != nil {
		return m, textinput.Blink
	}
	return m, nil
}

func formFor(s navigator.Screen) *form {
	switch s {
	case navigator.Login:
		return newForm(
			fieldSpec{label: "Username"},
			fieldSpec{label: "Password", secret: true},
		)
	case navigator.Signup:
		return newForm(
			fieldSpec{label: "Username"},
			fieldSpec{label: "Email"},
			fieldSpec{label: "Full name"},
			fieldSpec{label: "Password", secret: true},
			fieldSpec{label: "Confirm password", secret: true},
			fieldSpec{label: "Role", placeholder: "FARMER or USER", value: string(session.RoleFarmer)},
		)
	case navigator.PlantCheck:
		return newForm(fieldSpec{label: "Photo", placeholder: "path to a .jpg or .png"})
	case navigator.ProductRegister:
		return newForm(
			fieldSpec{label: "Crop"},
			fieldSpec{label: "Price (KRW)"},
			fieldSpec{label: "Unit", placeholder: "kg, unit, bundle or box", value: string(market.UnitKg)},
			fieldSpec{label: "Quantity"},
			fieldSpec{label: "Harvest date", placeholder: "2024.07.20"},
			fieldSpec{label: "Organic", placeholder: "y/n", value: "n"},
			fieldSpec{label: "Pickup location"},
			fieldSpec{label: "Description"},
		)
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	key := msg.String()

	if m.form != nil {
		switch key {
		case "esc":
			return m.fire(navigator.EventBack)
		case "ctrl+n":
			if m.screen == navigator.Login {
				return m.fire(navigator.EventSignup)
			}
		case "enter":
			if !m.form.last() {
				return m, m.form.move(1)
			}
			return m.submit()
		}
		return m, m.form.update(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "enter", "right", "n":
		return m.fire(navigator.EventNext)
	case "left", "esc", "b":
		return m.fire(navigator.EventBack)
	case "d":
		if m.screen == navigator.Market {
			return m.fire(navigator.EventNavDiagnose)
		}
		return m.fire(navigator.EventDiagnose)
	case "m":
		if m.screen == navigator.Market {
			return m.fire(navigator.EventNavMarket)
		}
		return m.fire(navigator.EventOpenMarket)
	case "r":
		return m.fire(navigator.EventRegisterProduct)
	case "h":
		return m.fire(navigator.EventNavHome)
	case "o":
		return m.fire(navigator.EventLogout)
	}

	var cmd tea.Cmd
	m.body, cmd = m.body.Update(msg)
	return m, cmd
}

// submit sends the focused form. Network calls run as commands so the UI
// loop never blocks on them.
func (m Model) submit() (Model, tea.Cmd) {
	f := m.form
	a, ctx := m.app, m.ctx

	switch m.screen {
	case navigator.Login:
		username, password := f.value(0), f.raw(1)
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			user, err := a.Login(ctx, username, password)
			return loginMsg{user: user, err: err}
		})

	case navigator.Signup:
		role := session.Role(strings.ToUpper(f.value(5)))
		req := api.RegisterRequest{
			Username:        f.value(0),
			Email:           f.value(1),
			FullName:        f.value(2),
			Password:        f.raw(3),
			ConfirmPassword: f.raw(4),
			Role:            role,
		}
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			res, err := a.Signup(ctx, req)
			return signupMsg{res: res, err: err}
		})

	case navigator.PlantCheck:
		path := f.value(0)
		if path == "" {
			m.modal = &modal{title: "No photo", body: "Enter the path of a photo to analyze.", err: true}
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			out, err := a.AnalyzeFile(ctx, path)
			return analyzeMsg{out: out, err: err}
		})

	case navigator.ProductRegister:
		unit, err := market.ParseUnit(f.value(2))
		if err != nil {
			m.modal = &modal{title: "Check the unit", body: err.Error(), err: true}
			return m, nil
		}
		organic := strings.HasPrefix(strings.ToLower(f.value(5)), "y")
		l, err := a.RegisterListing(market.Registration{
			CropType:       f.value(0),
			Price:          f.value(1),
			Unit:           unit,
			Quantity:       f.value(3),
			HarvestDate:    f.value(4),
			Organic:        organic,
			PickupLocation: f.value(6),
			Description:    f.value(7),
		})
		if err != nil {
			m.fail("Registration failed", err)
			return m, nil
		}
		m.modal = &modal{
			title: "Product registered",
			body:  fmt.Sprintf("%s is now listed at %s KRW per %s.", l.DisplayName(), l.Price, l.Unit),
			then:  navigator.EventProductRegistered,
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.body.SetContent(m.renderBody())
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	left := "  wecanfarm  " + screenTitles[m.screen]
	right := ""
	if u, ok := m.app.Session().User(); ok {
		right = u.DisplayName + " · " + roleLabel(u.Role) + "  "
	}
	pad := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-4, 1)
	title := titleStyle.Width(m.width).Render(left + strings.Repeat(" ", pad) + right)

	content := m.body.View()
	if m.modal != nil {
		style := modalStyle
		if m.modal.err {
			style = modalErrorStyle
		}
		box := style.Render(sectionHeader.Render(m.modal.title) + "\n\n" + m.modal.body + "\n\n" + dimStyle.Render("enter to continue"))
		content = lipgloss.Place(m.width, m.body.Height, lipgloss.Center, lipgloss.Center, box)
	}

	state := ""
	if m.busy {
		state = m.spinner.View() + " uploading"
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, content, statusBar(m.width, m.hint(), state))
}

func (m Model) hint() string {
	if m.modal != nil {
		return "  enter ok"
	}
	switch m.screen {
	case navigator.Onboarding1:
		return "  enter next  q quit"
	case navigator.Onboarding2:
		return "  enter next  ← back  q quit"
	case navigator.Login:
		return "  tab field  enter log in  ctrl+n sign up  ctrl+c quit"
	case navigator.Signup:
		return "  tab field  enter sign up  esc back"
	case navigator.PlantCheck:
		if m.busy {
			return "  capture disabled while uploading"
		}
		return "  enter analyze  esc back"
	case navigator.FarmerDashboard:
		return "  d diagnose  m market  o log out  q quit"
	case navigator.Market:
		return "  r register  d diagnose  h home  esc back  o log out  q quit"
	case navigator.ProductRegister:
		return "  tab field  enter register  esc back"
	}
	return "  q quit"
}

func (m Model) renderBody() string {
	var sb strings.Builder
	switch m.screen {
	case navigator.Onboarding1:
		sb.WriteString(heading("We can farm"))
		sb.WriteString("  Take a photo of your crops and find out in seconds\n")
		sb.WriteString("  whether they are healthy.\n")
	case navigator.Onboarding2:
		sb.WriteString(heading("Grow, check, sell"))
		sb.WriteString(bullet("Diagnose crop diseases with a photo"))
		sb.WriteString(bullet("Track the health of your farm"))
		sb.WriteString(bullet("Sell your harvest directly in the market"))
	case navigator.Login, navigator.Signup, navigator.ProductRegister:
		sb.WriteString(heading(screenTitles[m.screen]))
		sb.WriteString(m.form.view())
	case navigator.PlantCheck:
		sb.WriteString(m.renderPlantCheck())
	case navigator.FarmerDashboard:
		sb.WriteString(m.renderDashboard())
	case navigator.Market:
		sb.WriteString(m.renderMarket())
	}
	return sb.String()
}

func (m Model) renderPlantCheck() string {
	var sb strings.Builder
	sb.WriteString(heading("Plant check"))
	sb.WriteString(m.form.view())
	if m.busy {
		sb.WriteString("\n  " + m.spinner.View() + " Analyzing your photo…\n")
	}
	if m.last != nil && !m.last.Empty {
		sb.WriteString(heading("Last result"))
		for _, d := range m.last.Response.Detections {
			row(&sb, d.CropType, fmt.Sprintf("%s  disease %s  model %s",
				statusBadge(d.DiseaseStatus, history.IsHealthy(d.DiseaseStatus)),
				percent(d.DiseaseConfidence), percent(d.ModelConfidence)))
		}
	}
	return sb.String()
}

func (m Model) renderDashboard() string {
	var sb strings.Builder
	d, err := m.app.Dashboard()
	if err != nil {
		sb.WriteString(heading("My farm"))
		sb.WriteString(dimStyle.Render("  (not signed in)") + "\n")
		return sb.String()
	}
	sb.WriteString(heading("Hello, " + d.User.DisplayName))
	row(&sb, "Analyses:", fmt.Sprintf("%d", d.Summary.Total))
	row(&sb, "Healthy:", healthyStyle.Render(fmt.Sprintf("%d", d.Summary.Healthy)))
	row(&sb, "Need attention:", unhealthyStyle.Render(fmt.Sprintf("%d", d.Summary.Unhealthy)))
	if d.Summary.Attention {
		sb.WriteString("\n" + unhealthyStyle.Render("  Some crops need attention. Check them soon.") + "\n")
	}

	sb.WriteString(heading("Recent checks"))
	if len(d.Recent) == 0 {
		sb.WriteString(dimStyle.Render("  (no analyses yet, press d to check a plant)") + "\n")
	}
	for _, r := range d.Recent {
		sb.WriteString(fmt.Sprintf("  %s  %-14s %s\n",
			timeStyle.Render(r.CapturedAt.Format("01-02 15:04")), r.CropType, statusBadge(r.DiseaseStatus, r.Healthy())))
	}
	return sb.String()
}

func (m Model) renderMarket() string {
	reg := m.app.Market()
	var sb strings.Builder
	sb.WriteString(heading("Featured"))
	featured := reg.Featured()
	if len(featured) == 0 {
		sb.WriteString(dimStyle.Render("  (no products yet)") + "\n")
	}
	for _, l := range featured {
		sb.WriteString(listingLine(l))
	}
	if others := reg.Others(); len(others) > 0 {
		sb.WriteString(heading("More products"))
		for _, l := range others {
			sb.WriteString(listingLine(l))
		}
	}
	return sb.String()
}

func listingLine(l market.Listing) string {
	name := l.DisplayName()
	if l.Organic {
		name = organicStyle.Render(name)
	}
	return bullet(fmt.Sprintf("%s  %s KRW/%s  %s left  %s", name, l.Price, l.Unit, l.Quantity, dimStyle.Render("by "+l.Seller)))
}

func roleLabel(r session.Role) string {
	if r == session.RoleFarmer {
		return "farmer"
	}
	return "customer"
}

// Run starts the interactive app on the terminal.
func Run(ctx context.Context, a *app.App, log zerolog.Logger) error {
	p := tea.NewProgram(New(ctx, a, log), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
