package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/wecanfarm/wecanfarm/internal/api"
	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/navigator"
)

func backend(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			var body struct{ Password string }
			_ = jsonDecode(r.Body, &body)
			if body.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"detail":"Incorrect username or password"}`)
				return
			}
			io.WriteString(w, `{"access_token":"tok","token_type":"bearer","user_id":7,"username":"kim","role":"`+role+`"}`)
		case "/api/analyze":
			io.WriteString(w, `{"total_detections":1,"detections":[{"bbox":[1,2,3,4],"crop_type":"tomato","disease_status":"leaf mold","disease_confidence":0.8,"yolo_confidence":0.9,"label":"m"}]}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestModel(t *testing.T, role string) (Model, *app.App) {
	t.Helper()
	ts := httptest.NewServer(backend(role))
	t.Cleanup(ts.Close)
	client, err := api.NewClient(api.Options{BaseURL: ts.URL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	a, err := app.New(app.Options{Client: client, Logger: zerolog.Nop(), SeedMarket: true})
	if err != nil {
		t.Fatal(err)
	}
	m := New(context.Background(), a, zerolog.Nop())
	return send(m, tea.WindowSizeMsg{Width: 100, Height: 40}), a
}

func send(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func sendCmd(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// collect runs cmd, expanding batches, and returns the produced messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// deliver runs cmd and feeds its result messages back into m.
func deliver(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	delivered := false
	for _, msg := range collect(cmd) {
		switch msg.(type) {
		case loginMsg, signupMsg, analyzeMsg:
			m = send(m, msg)
			delivered = true
		}
	}
	if !delivered {
		t.Fatal("command produced no result message")
	}
	return m
}

func toLogin(t *testing.T, m Model) Model {
	t.Helper()
	m = send(m, keyMsg("enter"))
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.Login {
		t.Fatalf("expected login screen, got %s", m.Screen())
	}
	return m
}

func login(t *testing.T, m Model, password string) Model {
	t.Helper()
	m = toLogin(t, m)
	m.form.inputs[0].SetValue("kim")
	m.form.inputs[1].SetValue(password)
	m = send(m, keyMsg("enter")) // focus password
	m, cmd := sendCmd(m, keyMsg("enter"))
	if !m.busy {
		t.Fatal("login should mark the model busy")
	}
	return deliver(t, m, cmd)
}

func TestOnboardingNavigation(t *testing.T) {
	m, _ := newTestModel(t, "FARMER")
	if m.Screen() != navigator.Onboarding1 {
		t.Fatalf("start screen = %s", m.Screen())
	}
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.Onboarding2 {
		t.Fatalf("after next: %s", m.Screen())
	}
	m = send(m, keyMsg("left"))
	if m.Screen() != navigator.Onboarding1 {
		t.Fatalf("after back: %s", m.Screen())
	}
	m = toLogin(t, m)
	if m.form == nil || len(m.form.inputs) != 2 {
		t.Fatal("login screen should show a two-field form")
	}
	if !strings.Contains(m.View(), "Log in") {
		t.Error("view should show the login title")
	}
}

func TestLoginSuccessModalAdvancesByRole(t *testing.T) {
	for role, want := range map[string]navigator.Screen{
		"FARMER": navigator.FarmerDashboard,
		"USER":   navigator.Market,
	} {
		m, _ := newTestModel(t, role)
		m = login(t, m, "secret")
		if m.busy {
			t.Error("result should clear busy")
		}
		if m.modal == nil || m.modal.err {
			t.Fatalf("expected success modal, got %+v", m.modal)
		}
		if m.Screen() != navigator.Login {
			t.Fatal("screen must not change before the modal is acknowledged")
		}
		m = send(m, keyMsg("x"))
		if m.modal == nil {
			t.Fatal("only the acknowledgement key closes the modal")
		}
		m = send(m, keyMsg("enter"))
		if m.Screen() != want {
			t.Errorf("role %s: landed on %s, want %s", role, m.Screen(), want)
		}
	}
}

func TestLoginFailureStaysOnLogin(t *testing.T) {
	m, a := newTestModel(t, "FARMER")
	m = login(t, m, "wrong")
	if m.modal == nil || !m.modal.err {
		t.Fatalf("expected failure modal, got %+v", m.modal)
	}
	if m.modal.body != "Wrong username or password." {
		t.Errorf("modal body = %q", m.modal.body)
	}
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.Login || a.Session().IsAuthenticated() {
		t.Errorf("failed login should stay on login without a session")
	}
}

func TestCaptureDisabledWhileUploading(t *testing.T) {
	m, a := newTestModel(t, "FARMER")
	m = login(t, m, "secret")
	m = send(m, keyMsg("enter"))
	m = send(m, keyMsg("d"))
	if m.Screen() != navigator.PlantCheck {
		t.Fatalf("expected plant check, got %s", m.Screen())
	}

	path := filepath.Join(t.TempDir(), "leaf.png")
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	m.form.inputs[0].SetValue(path)

	m, cmd := sendCmd(m, keyMsg("enter"))
	if !m.busy || cmd == nil {
		t.Fatal("submitting a photo should start an upload")
	}
	if !strings.Contains(m.View(), "uploading") {
		t.Error("status bar should show the upload")
	}

	again, second := sendCmd(m, keyMsg("enter"))
	if second != nil || !again.busy {
		t.Error("capture must be disabled while uploading")
	}
	again = send(again, keyMsg("esc"))
	if again.Screen() != navigator.PlantCheck {
		t.Error("navigation must be blocked while uploading")
	}

	m = deliver(t, again, cmd)
	if m.busy || m.modal == nil || m.modal.title != "Analysis complete" {
		t.Fatalf("unexpected state after analysis: busy=%v modal=%+v", m.busy, m.modal)
	}
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.PlantCheck || m.last == nil {
		t.Error("result should stay on the plant check screen")
	}
	if a.History().Len() != 1 {
		t.Errorf("history has %d records, want 1", a.History().Len())
	}

	m = send(m, keyMsg("esc"))
	if m.Screen() != navigator.FarmerDashboard {
		t.Fatalf("back from plant check: %s", m.Screen())
	}
	if !strings.Contains(m.View(), "Need attention") {
		t.Error("dashboard should show the counts")
	}
}

func TestRegisterProductFromMarket(t *testing.T) {
	m, a := newTestModel(t, "USER")
	m = login(t, m, "secret")
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.Market {
		t.Fatalf("expected market, got %s", m.Screen())
	}
	m = send(m, keyMsg("r"))
	if m.Screen() != navigator.ProductRegister {
		t.Fatalf("expected product register, got %s", m.Screen())
	}

	values := []string{"Cucumber", "3000", "박스", "4", "2024.08.01", "y", "Farm gate", "Crunchy"}
	for i, v := range values {
		m.form.inputs[i].SetValue(v)
	}
	for range values {
		m = send(m, keyMsg("enter"))
	}
	if m.modal == nil || m.modal.err {
		t.Fatalf("expected success modal, got %+v", m.modal)
	}
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.Market {
		t.Fatalf("expected market after registering, got %s", m.Screen())
	}
	l := a.Market().Featured()[0]
	if l.CropType != "Cucumber" || !l.Organic || l.Seller != "kim" || string(l.Unit) != "box" {
		t.Errorf("unexpected listing %+v", l)
	}

	m = send(m, keyMsg("esc"))
	if m.Screen() != navigator.Login || a.Session().IsAuthenticated() {
		t.Error("back from the market should return a customer to login and end the session")
	}
}

func TestRegisterProductValidation(t *testing.T) {
	m, a := newTestModel(t, "USER")
	m = login(t, m, "secret")
	m = send(m, keyMsg("enter"))
	m = send(m, keyMsg("r"))
	before := a.Market().Len()
	for range 8 {
		m = send(m, keyMsg("enter"))
	}
	if m.modal == nil || !m.modal.err || !strings.Contains(m.modal.body, "crop type") {
		t.Fatalf("expected validation modal, got %+v", m.modal)
	}
	m = send(m, keyMsg("enter"))
	if m.Screen() != navigator.ProductRegister || a.Market().Len() != before {
		t.Error("invalid registration must not add a listing or leave the form")
	}
}

func jsonDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
