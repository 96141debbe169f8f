package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/affetto/affctrl/pkg/control"
	"github.com/affetto/affctrl/pkg/loop"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// jointPalette cycles over joint indices.
var jointPalette = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
	"93",  // purple
	"214", // amber
	"39",  // blue
	"118", // lime
	"213", // pink
	"87",  // sky
	"160", // crimson
}

func jointColor(j int) string {
	return jointPalette[j%len(jointPalette)]
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	ctrl     *loop.Loop
	chart    *streamlinechart.Model
	dof      int
	width    int
	height   int
	logs     []string
	tick     uint64
	stale    uint64
	quitting bool
	fatal    error
}

func (m *model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the control loop
type stateMsg loop.State
type logMsg string

func waitForState(ctrl *loop.Loop) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *loop.Loop) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *model) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialModel(ctrl *loop.Loop, rng control.Range, dof int) model {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(rng.Min, rng.Max),
	)

	// Set up data set styles for each joint
	for j := 0; j < dof; j++ {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColor(j)))
		chart.SetDataSetStyles(dataSet(j), runes.ThinLineStyle, style)
	}

	return model{
		ctrl:  ctrl,
		chart: &chart,
		dof:   dof,
	}
}

func dataSet(j int) string {
	return fmt.Sprintf("q%d", j)
}

func (m model) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		st := loop.State(msg)
		m.tick = st.Tick
		m.stale = st.Stale
		if st.Err != nil {
			if errors.Is(st.Err, context.Canceled) || errors.Is(st.Err, context.DeadlineExceeded) {
				// Orderly shutdown (timeout or Stop), not a failure.
				m.quitting = true
				return m, tea.Quit
			}
			m.fatal = st.Err
			m.quitting = true
			return m, tea.Quit
		}
		if st.Q != nil {
			for j, q := range st.Q {
				m.chart.PushDataSet(dataSet(j), q)
			}
			m.chart.DrawAll()
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		if m.fatal != nil {
			return fmt.Sprintf("Control session aborted: %v\n", m.fatal)
		}
		return "Control session stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Affetto Control"))
	sb.WriteString(fmt.Sprintf(" - tick %d", m.tick))
	if m.stale > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  (%d stale)", m.stale)))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m model) renderLegend() string {
	var items []string
	for j := 0; j < m.dof; j++ {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColor(j))).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+dataSet(j))
	}
	return strings.Join(items, "  ")
}
