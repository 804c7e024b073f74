package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/runtime"
	"github.com/wippyai/classbridge/variant"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectClass modelState = iota
	stateInstance
)

type interactiveModel struct {
	err      error
	bridge   *runtime.Bridge
	result   string
	classes  []class.Descriptor
	fields   map[string]variant.Variant
	input    textinput.Model
	id       classbridge.ObjectID
	selected int
	state    modelState
}

func newInteractiveModel(b *runtime.Bridge) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "hit 10   |   hp=50   |   destroy"
	ti.Prompt = "> "
	ti.Width = 50
	return &interactiveModel{bridge: b, classes: b.Enumerate(), input: ti}
}

type commandMsg struct {
	err       error
	fields    map[string]variant.Variant
	result    string
	id        classbridge.ObjectID
	destroyed bool
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateSelectClass {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectClass && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectClass && m.selected < len(m.classes)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectClass:
				if len(m.classes) == 0 {
					return m, nil
				}
				return m, m.spawn(m.classes[m.selected].Name)
			case stateInstance:
				line := m.input.Value()
				m.input.SetValue("")
				return m, m.run(line)
			}

		case "esc":
			if m.state == stateInstance {
				m.state = stateSelectClass
				m.input.Blur()
				m.result, m.err = "", nil
			}
			return m, nil
		}

	case commandMsg:
		m.err = msg.err
		m.result = msg.result
		if msg.fields != nil {
			m.fields = msg.fields
		}
		switch {
		case msg.id != 0:
			m.id = msg.id
			m.state = stateInstance
			m.input.Focus()
		case msg.destroyed:
			m.state = stateSelectClass
			m.input.Blur()
		}
		return m, nil
	}

	if m.state == stateInstance {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) spawn(name string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		inst, err := m.bridge.New(ctx, name)
		if err != nil {
			return commandMsg{err: err}
		}
		fields, err := m.bridge.Fields(ctx, inst.ID())
		return commandMsg{id: inst.ID(), fields: fields, err: err, result: fmt.Sprintf("spawned %s#%d", name, inst.ID())}
	}
}

// run executes one console line against the current instance:
// "destroy", "name=value" or "method arg...".
func (m *interactiveModel) run(line string) tea.Cmd {
	id := m.id
	return func() tea.Msg {
		ctx := context.Background()
		line = strings.TrimSpace(line)
		if line == "" {
			return commandMsg{}
		}

		if line == "destroy" {
			if err := m.bridge.Destroy(ctx, id); err != nil {
				return commandMsg{err: err}
			}
			return commandMsg{destroyed: true, result: fmt.Sprintf("destroyed #%d", id)}
		}

		var msg commandMsg
		if name, value, ok := strings.Cut(line, "="); ok {
			msg.err = m.set(ctx, id, strings.TrimSpace(name), value)
			if msg.err == nil {
				msg.result = "set " + strings.TrimSpace(name)
			}
		} else {
			parts := strings.Fields(line)
			args := make([]variant.Variant, len(parts)-1)
			for i, p := range parts[1:] {
				args[i] = parseArg(p)
			}
			res := m.bridge.InvokeVirtual(ctx, id, parts[0], args...)
			msg.err = res.Err
			msg.result = fmt.Sprintf("%s -> %v (%s)", parts[0], res.Value, res.Status)
		}

		fields, err := m.bridge.Fields(ctx, id)
		if err != nil && msg.err == nil {
			msg.err = err
		}
		msg.fields = fields
		return msg
	}
}

func (m *interactiveModel) set(ctx context.Context, id classbridge.ObjectID, name, text string) error {
	cur, err := m.bridge.GetField(ctx, id, name)
	if err != nil {
		return err
	}
	v, err := variant.Parse(cur.Tag(), text)
	if err != nil {
		return err
	}
	return m.bridge.SetField(ctx, id, name, v)
}

// parseArg reads a console argument as the narrowest scalar it spells.
func parseArg(s string) variant.Variant {
	for _, tag := range []variant.Tag{variant.Int, variant.Float, variant.Bool} {
		if v, err := variant.Parse(tag, s); err == nil {
			return v
		}
	}
	if strings.HasPrefix(s, "(") {
		for _, tag := range []variant.Tag{variant.Vector2, variant.Vector3, variant.Color} {
			if v, err := variant.Parse(tag, s); err == nil {
				return v
			}
		}
	}
	return variant.FromString(s)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Class Bridge"))
	fmt.Fprintf(&b, " %d classes, %d live\n\n", len(m.classes), len(m.bridge.LiveIDs()))

	switch m.state {
	case stateSelectClass:
		if len(m.classes) == 0 {
			b.WriteString("No classes registered.\n")
			break
		}
		b.WriteString("Select a class to instantiate:\n\n")
		for i, d := range m.classes {
			line := m.formatClass(d)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
		} else if m.result != "" {
			b.WriteString(resultStyle.Render(m.result) + "\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter new • q quit"))

	case stateInstance:
		inst, _ := m.bridge.Instance(m.id)
		name := "?"
		if inst != nil {
			name = inst.Class()
		}
		fmt.Fprintf(&b, "%s#%d\n\n", classStyle.Render(name), m.id)

		keys := make([]string, 0, len(m.fields))
		for k := range m.fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			v := m.fields[k]
			fmt.Fprintf(&b, "  %s %s = %v\n", k, typeStyle.Render(v.Tag().String()), v)
		}
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc back • ctrl+c quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatClass(d class.Descriptor) string {
	return classStyle.Render(d.Name) + " extends " + typeStyle.Render(d.Base) +
		fmt.Sprintf(" (%d fields, %d overrides)", len(d.Fields), len(d.Virtuals))
}

func runInteractive(b *runtime.Bridge) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	p := tea.NewProgram(newInteractiveModel(b), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
