package review

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ajolex/job-application-agent/internal/store"
)

// Lines per match item in the list view (title + subtitle + blank separator).
const matchItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")) // bright blue

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	matchTitleStyle = lipgloss.NewStyle().
			Bold(true)

	matchSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	barFilledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // green

	concernStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // orange
)

type reviewModel struct {
	matches  []store.MatchedJob
	viewport viewport.Model
	cursor   int
	width    int
	height   int
	ready    bool

	view            viewState
	detailViewport  viewport.Model
	showDescription bool
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m reviewModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.matches)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.matches)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "o":
		if len(m.matches) > 0 {
			openURL(m.matches[m.cursor].Posting.URL)
		}
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the viewport.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m reviewModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		openURL(m.matches[m.cursor].Posting.URL)
		return m, nil
	case "r":
		if m.matches[m.cursor].Posting.Description != "" {
			m.showDescription = !m.showDescription
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *reviewModel) ensureCursorVisible() {
	cursorTop := m.cursor * matchItemHeight
	cursorBottom := cursorTop + matchItemHeight - 1

	if cursorTop < m.viewport.YOffset {
		m.viewport.SetYOffset(cursorTop)
	} else if cursorBottom >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(cursorBottom - m.viewport.Height + 1)
	}
}

func (m reviewModel) openDetailView() (tea.Model, tea.Cmd) {
	if len(m.matches) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.showDescription = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *reviewModel) recalcLayout() {
	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneWidth := max(m.width-2, 20)
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.viewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.viewport.Width = paneWidth
		m.viewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *reviewModel) recalcContent() {
	m.viewport.SetContent(renderMatches(m.matches, m.cursor))
}

func (m reviewModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m reviewModel) viewList() string {
	header := headerStyle.Render(fmt.Sprintf(" Matched Jobs (%d)", len(m.matches)))
	pane := borderStyle.Width(m.viewport.Width).Render(m.viewport.View())

	statusText := " ↑/↓ cursor  Enter detail  o open URL  q quit"
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return header + "\n" + pane + "\n" + statusBar
}

func (m reviewModel) viewDetail() string {
	title := detailTitleStyle.Render("Match Details")

	border := borderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	if m.matches[m.cursor].Posting.Description != "" {
		statusText = " o open URL  r description  esc/backspace back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m reviewModel) renderDetail() string {
	match := m.matches[m.cursor]
	p := match.Posting
	s := match.Score
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", p.Title)
	addField("Organization", p.Organization)
	addField("Location", p.Location)
	addField("Source", p.Source)
	addField("Job Type", p.JobType)
	addField("Salary", p.Salary)
	addField("Posted", p.PostedDate)
	addField("Deadline", p.Deadline)

	b.WriteByte('\n')
	addField("URL", p.URL)

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	b.WriteByte('\n')
	b.WriteString(divider("── Match Score ") + "\n\n")
	addField("Overall", fmt.Sprintf("%.1f", s.Overall))
	addBar := func(label string, value float64) {
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(renderScoreBar(value))
		b.WriteString(fmt.Sprintf("  %.0f", value))
		b.WriteByte('\n')
	}
	addBar("Skills", s.Skills)
	addBar("Experience", s.Experience)
	addBar("Domain", s.Domain)
	addBar("Qualifications", s.Qualifications)

	if s.Reasoning != "" {
		b.WriteByte('\n')
		b.WriteString(bodyStyle.Render(wordWrap(s.Reasoning, wrapWidth)) + "\n")
	}

	if len(s.Highlights) > 0 {
		b.WriteByte('\n')
		b.WriteString(divider("── Highlights ") + "\n\n")
		for _, h := range s.Highlights {
			if h != "" {
				b.WriteString(highlightStyle.Render("  + "+h) + "\n")
			}
		}
	}

	if len(s.Concerns) > 0 {
		b.WriteByte('\n')
		b.WriteString(divider("── Concerns ") + "\n\n")
		for _, c := range s.Concerns {
			if c != "" {
				b.WriteString(concernStyle.Render("  - "+c) + "\n")
			}
		}
	}

	if p.Description != "" {
		b.WriteByte('\n')
		if m.showDescription {
			b.WriteString(divider("── Job Description ") + "\n\n")
			b.WriteString(bodyStyle.Render(wordWrap(p.Description, wrapWidth)) + "\n")
		} else {
			b.WriteString(hintStyle.Render("  press r to read job description") + "\n")
		}
	}

	return b.String()
}

// renderScoreBar renders a 20-cell bar for a 0-100 score.
func renderScoreBar(value float64) string {
	const cells = 20
	filled := clamp(int(value/100*cells+0.5), 0, cells)
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", cells-filled))
}

func renderMatches(matches []store.MatchedJob, cursor int) string {
	if len(matches) == 0 {
		return "  (no matched jobs yet)"
	}

	var b strings.Builder
	for i, match := range matches {
		isSelected := i == cursor

		titleSt := matchTitleStyle
		subtitleSt := matchSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(match.Posting.Title))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%.0f · %s · %s",
			match.Score.Overall, match.Posting.Organization, match.Posting.Location)))
		b.WriteByte('\n')

		if i < len(matches)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the interactive match review TUI over matches, which are
// expected in descending score order as returned by the store.
func Run(matches []store.MatchedJob) error {
	m := reviewModel{matches: matches}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
