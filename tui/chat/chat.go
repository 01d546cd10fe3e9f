// Package chat renders an interactive conversation against the knowledge
// base: a scrolling message list, an input line, and a collapsible sources
// panel linked to citation activation.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	chatctl "atenex-cli/internal/chat"
	"atenex-cli/internal/model"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	tagStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).PaddingLeft(1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// jumpState is the scroll/highlight target shared with the panel linker.
type jumpState struct {
	mu  sync.Mutex
	key string
}

func (j *jumpState) set(key string) {
	j.mu.Lock()
	j.key = key
	j.mu.Unlock()
}

func (j *jumpState) get() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.key
}

type sendDoneMsg struct{ err error }

type historyLoadedMsg struct{ err error }

// Model is the bubbletea model for one conversation.
type Model struct {
	ctrl   *chatctl.Controller
	linker *chatctl.PanelLinker
	target *jumpState
	log    *zap.Logger

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model

	chatID     string
	notice     string
	panelReady bool
	width      int
	height     int
	ready      bool
}

// New builds the chat model. A non-empty chatID loads that conversation's
// history on startup.
func New(ctrl *chatctl.Controller, chatID string, log *zap.Logger) Model {
	target := &jumpState{}
	linker := chatctl.NewPanelLinker(target.set)

	ta := textarea.New()
	ta.Placeholder = "Pregunta algo sobre tus documentos..."
	ta.Prompt = "> "
	ta.CharLimit = 2000
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctrl:     ctrl,
		linker:   linker,
		target:   target,
		log:      log,
		viewport: vp,
		input:    ta,
		spin:     sp,
		chatID:   chatID,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spin.Tick}
	if m.chatID != "" {
		cmds = append(cmds, m.loadHistory())
	} else {
		cmds = append(cmds, func() tea.Msg { return historyLoadedMsg{} })
	}
	return tea.Batch(cmds...)
}

func (m Model) loadHistory() tea.Cmd {
	ctrl, chatID := m.ctrl, m.chatID
	return func() tea.Msg {
		return historyLoadedMsg{err: ctrl.Load(context.Background(), chatID)}
	}
}

func (m Model) send(text string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return sendDoneMsg{err: ctrl.Send(context.Background(), text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.refreshContent()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlS:
			m.linker.Toggle()
			m.panelReady = false
			m.resize()
			m.refreshContent()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.ctrl.Sending() {
				return m, nil
			}
			m.input.Reset()
			m.notice = ""
			cmds = append(cmds, m.send(text))
		}
		// alt+1..alt+9 activates the corresponding citation
		if msg.Alt && len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] <= '9' {
			sources := m.ctrl.Sources()
			if i := int(msg.Runes[0] - '1'); i < len(sources) {
				m.linker.Activate(sourceTag(sources[i], i))
				m.resize()
				m.refreshContent()
			}
			return m, nil
		}

	case sendDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else if len(m.ctrl.Sources()) > 0 {
			m.linker.Show()
			m.resize()
		}
		m.refreshContent()
		m.viewport.GotoBottom()

	case historyLoadedMsg:
		if msg.err != nil {
			m.notice = "Fallo al cargar el historial."
		} else if len(m.ctrl.Sources()) > 0 {
			m.linker.Show()
			m.resize()
		}
		m.refreshContent()
		m.viewport.GotoBottom()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	// a freshly opened panel reports ready once it has a size to render in
	if m.linker.Open() && m.ready && !m.panelReady {
		m.panelReady = true
		m.linker.Ready()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	chatWidth := m.width
	if m.linker.Open() {
		chatWidth = m.width - m.panelWidth()
	}
	inputHeight := m.input.Height()
	m.viewport.Width = chatWidth
	m.viewport.Height = m.height - inputHeight - 2
	m.input.SetWidth(chatWidth)
}

func (m Model) panelWidth() int {
	w := m.width * 2 / 5
	if w < 24 {
		w = 24
	}
	return w
}

func (m *Model) refreshContent() {
	m.viewport.SetContent(m.renderMessages())
}

func (m Model) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.ctrl.Messages() {
		switch {
		case msg.IsError:
			b.WriteString(errorStyle.Render("✗ " + msg.Content))
		case msg.Role == model.RoleUser:
			author := msg.AuthorDisplay
			if author == "" {
				author = "Tú"
			}
			b.WriteString(userStyle.Render(author+":") + " " + msg.Content)
		default:
			b.WriteString(assistantStyle.Render("Atenex:") + " " + msg.Content)
			if len(msg.Sources) > 0 {
				b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("  %d fuentes (alt+n para ver)", len(msg.Sources))))
			}
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func sourceTag(c model.Citation, i int) string {
	if c.Tag != "" {
		return c.Tag
	}
	return fmt.Sprintf("Doc %d", i+1)
}

func (m Model) renderPanel() string {
	sources := m.ctrl.Sources()
	highlight := m.target.get()

	var b strings.Builder
	b.WriteString(tagStyle.Render("Fuentes") + "\n\n")
	if len(sources) == 0 {
		b.WriteString(dimStyle.Render("Sin fuentes para esta conversación."))
	}
	width := m.panelWidth() - 3
	for i, src := range sources {
		tag := sourceTag(src, i)
		line := fmt.Sprintf("[%d] %s", i+1, tag)
		if src.FileName != "" {
			line += " · " + src.FileName
		}
		if chatctl.TagKey(tag) == highlight {
			b.WriteString(highlightStyle.Render("▸ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("    score %.2f", src.Score)) + "\n")
		if preview := src.ContentPreview; preview != "" {
			b.WriteString(dimStyle.Render("    "+clip(preview, width)) + "\n")
		}
		b.WriteString("\n")
	}
	return panelStyle.Width(m.panelWidth()).Height(m.viewport.Height).Render(b.String())
}

func clip(s string, max int) string {
	if max <= 1 || len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func (m Model) View() string {
	if !m.ready {
		return "Cargando..."
	}

	status := dimStyle.Render("ctrl+s fuentes · esc salir")
	if m.ctrl.Sending() {
		status = m.spin.View() + " Atenex está pensando..."
	}
	if m.notice != "" {
		status = errorStyle.Render(m.notice)
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		status,
		m.input.View(),
	)
	if !m.linker.Open() {
		return left
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, m.renderPanel())
}
