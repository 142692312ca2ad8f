// Package viewer is the live terminal viewer: it follows the server's WebSocket
// channel and shows the latest reading with any alerts it raised.
package viewer

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

const maxAlertLines = 10

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// SeverityOf ranks an alert for display only. Body temperature alerts rank high.
func SeverityOf(t models.AlertType) Severity {
	if t == models.AlertTypeBodyTempHigh || t == models.AlertTypeBodyTempLow {
		return SeverityHigh
	}
	return SeverityMedium
}

var alertText = map[models.AlertType]string{
	models.AlertTypeTemperatureHigh: "Room temperature too high",
	models.AlertTypeTemperatureLow:  "Room temperature too low",
	models.AlertTypeHumidityHigh:    "Humidity too high",
	models.AlertTypeHumidityLow:     "Humidity too low",
	models.AlertTypeBodyTempHigh:    "Body temperature too high",
	models.AlertTypeBodyTempLow:     "Body temperature too low",
}

// AlertLine renders one alert the way the viewer lists it.
func AlertLine(a models.Alert) string {
	text, ok := alertText[a.Type]
	if !ok {
		text = string(a.Type)
	}
	return fmt.Sprintf("[%s] %s: %.1f (allowed %.1f to %.1f)",
		SeverityOf(a.Type), text, a.Value, a.Threshold.Min, a.Threshold.Max)
}

var (
	colorTitleFg = lipgloss.Color("51")
	colorBorder  = lipgloss.Color("62")
	colorLabel   = lipgloss.Color("252")
	colorDim     = lipgloss.Color("240")
	colorOK      = lipgloss.Color("42")
	colorWarn    = lipgloss.Color("220")
	colorCrit    = lipgloss.Color("196")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitleFg)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(colorLabel).Width(18)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

type alertEntry struct {
	at    time.Time
	alert models.Alert
}

type Model struct {
	DeviceID string

	stream *Stream
	events chan any
	cancel context.CancelFunc
	state  StateMsg
	latest *models.Reading
	alerts []alertEntry
	width  int
}

func New(stream *Stream, deviceID string) Model {
	return Model{
		DeviceID: deviceID,
		stream:   stream,
		events:   make(chan any, 16),
		state:    StateMsg{State: StateIdle},
	}
}

func waitForEvent(events <-chan any) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Start runs the stream in the background; the returned func stops it.
func (m *Model) Start(ctx context.Context) context.CancelFunc {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.stream.Run(ctx, m.events)
	return m.cancel
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "r":
			if m.stream != nil {
				m.stream.RequestLatest()
			}
		case "c":
			m.alerts = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StateMsg:
		m.state = msg
		return m, waitForEvent(m.events)

	case ReadingMsg:
		m = m.applyReading(msg.Reading)
		return m, waitForEvent(m.events)
	}
	return m, nil
}

func (m Model) applyReading(r models.Reading) Model {
	if m.DeviceID != "" && r.DeviceID != m.DeviceID {
		return m
	}
	if m.latest != nil && m.latest.ID == r.ID {
		return m
	}
	m.latest = &r

	alerts := make([]alertEntry, 0, len(r.Alerts)+len(m.alerts))
	for _, a := range r.AlertList() {
		alerts = append(alerts, alertEntry{at: r.Timestamp, alert: a})
	}
	alerts = append(alerts, m.alerts...)
	if len(alerts) > maxAlertLines {
		alerts = alerts[:maxAlertLines]
	}
	m.alerts = alerts
	return m
}

func (m Model) stateLine() string {
	style := lipgloss.NewStyle().Foreground(colorWarn)
	switch m.state.State {
	case StateConnected:
		style = lipgloss.NewStyle().Foreground(colorOK)
	case StateDisconnected:
		style = lipgloss.NewStyle().Foreground(colorCrit)
	}
	line := style.Render("● " + m.state.State.String())
	if m.state.State == StateDisconnected && m.state.RetryIn > 0 {
		line += dimStyle.Render(fmt.Sprintf("  retrying in %s", m.state.RetryIn))
	}
	return line
}

func (m Model) View() string {
	var b strings.Builder

	title := "Crib monitor"
	if m.DeviceID != "" {
		title += " · " + m.DeviceID
	}
	b.WriteString(titleStyle.Render(title) + "  " + m.stateLine() + "\n\n")

	if m.latest == nil {
		b.WriteString(dimStyle.Render("Waiting for data…") + "\n")
	} else {
		r := m.latest
		rows := []string{
			labelStyle.Render("Device") + r.DeviceID,
			labelStyle.Render("Temperature") + fmt.Sprintf("%.1f °C", r.Temperature),
			labelStyle.Render("Humidity") + fmt.Sprintf("%.1f %%", r.Humidity),
			labelStyle.Render("Body temperature") + fmt.Sprintf("%.1f °C", r.BodyTemperature),
			labelStyle.Render("Updated") + r.Timestamp.Local().Format("15:04:05"),
		}
		b.WriteString(boxStyle.Render(strings.Join(rows, "\n")) + "\n")
	}

	if len(m.alerts) > 0 {
		b.WriteString("\n" + titleStyle.Render("Alerts") + "\n")
		for _, e := range m.alerts {
			style := lipgloss.NewStyle().Foreground(colorWarn)
			if SeverityOf(e.alert.Type) == SeverityHigh {
				style = lipgloss.NewStyle().Foreground(colorCrit)
			}
			b.WriteString(dimStyle.Render(e.at.Local().Format("15:04:05")) + " " + style.Render(AlertLine(e.alert)) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("r refresh · c clear alerts · q quit") + "\n")
	return b.String()
}

// Run starts the stream and the TUI and blocks until the user quits.
func Run(ctx context.Context, url, deviceID string) error {
	m := New(NewStream(url), deviceID)
	stop := m.Start(ctx)
	defer stop()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
