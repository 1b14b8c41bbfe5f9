package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type fieldSpec struct {
	label       string
	placeholder string
	secret      bool
	value       string
}

// form is a vertical list of text inputs with one focused at a time.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(specs ...fieldSpec) *form {
	f := &form{}
	for _, s := range specs {
		ti := textinput.New()
		ti.Placeholder = s.placeholder
		ti.CharLimit = 256
		ti.Width = 40
		ti.Prompt = "│ "
		if s.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		ti.SetValue(s.value)
		f.labels = append(f.labels, s.label)
		f.inputs = append(f.inputs, ti)
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

// raw returns the untrimmed value, for passwords.
func (f *form) raw(i int) string {
	return f.inputs[i].Value()
}

func (f *form) last() bool { return f.focus == len(f.inputs)-1 }

func (f *form) move(delta int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	return f.inputs[f.focus].Focus()
}

// update handles focus keys and forwards everything else, cursor blinks
// included, to the focused input.
func (f *form) update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			return f.move(1)
		case "shift+tab", "up":
			return f.move(-1)
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) view() string {
	var sb strings.Builder
	for i, ti := range f.inputs {
		label := labelStyle.Render(fmt.Sprintf("  %-16s", f.labels[i]))
		if i == f.focus {
			label = focusedLabelStyle.Render(fmt.Sprintf("› %-16s", f.labels[i]))
		}
		sb.WriteString(label + "  " + ti.View() + "\n")
	}
	return sb.String()
}
