package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/chat"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/frames"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/ui"
)

// Fixed rows: header, status bar, two dividers and the footer.
const chromeRows = 5

// weatherRows is the height of the weather block above the chat.
const weatherRows = 5

func (m Model) contentHeight() int {
	h := m.height - chromeRows - len(m.toasts)
	if m.errorMessage != "" {
		h--
	}
	return max(6, h)
}

func (m Model) leftPanelWidth() int {
	w := m.width * 45 / 100
	return max(24, min(w, m.width-30))
}

func (m Model) rightPanelWidth() int {
	return max(20, m.width-m.leftPanelWidth()-1)
}

// chatViewHeight leaves room for the weather block, the chat title and the
// input line.
func (m Model) chatViewHeight() int {
	return max(2, m.contentHeight()-weatherRows-2)
}

func (m *Model) resizeChat() {
	w := m.rightPanelWidth()
	m.chatView.Width = w - 2
	m.chatView.Height = m.chatViewHeight()
	m.chatInput.Width = max(10, w-4)
	m.refreshChat()
}

// refreshChat re-renders the conversation into the viewport, following the
// tail unless the user scrolled up.
func (m *Model) refreshChat() {
	width := max(10, m.chatView.Width)
	var lines []string
	for _, msg := range m.chat.Messages() {
		lines = append(lines, renderMessage(msg, width)...)
	}
	m.chatView.SetContent(strings.Join(lines, "\n"))
	if m.chatFollow {
		m.chatView.GotoBottom()
	}
}

func renderMessage(msg chat.Message, width int) []string {
	var label string
	switch msg.Role {
	case chat.RoleUser:
		label = ui.UserStyle.Render("You: ")
	case chat.RoleAssistant:
		label = ui.AssistantStyle.Render("Bot: ")
	default:
		var out []string
		for _, l := range wrapText(msg.Content, width) {
			out = append(out, ui.SystemStyle.Render(l))
		}
		return out
	}

	content := msg.Content
	switch msg.State {
	case chat.Pending:
		content = "…"
	case chat.Streaming:
		content += "▌"
	}
	wrapped := wrapText(content, max(5, width-5))
	out := []string{label + wrapped[0]}
	for _, wl := range wrapped[1:] {
		out = append(out, "     "+wl)
	}

	switch msg.State {
	case chat.AudioRequested:
		out = append(out, ui.DimStyle.Render("     ♪ preparing audio"))
	case chat.AudioPlaying:
		out = append(out, ui.DimStyle.Render("     ♪ speaking"))
	case chat.AudioFailed:
		out = append(out, ui.DimStyle.Render("     ♪ audio unavailable"))
	}
	return out
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.locPhase == locationPrompt {
		sections = append(sections, m.renderLocationPrompt())
	} else {
		sections = append(sections, m.renderMainContent())
	}

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	for _, t := range m.toasts {
		sections = append(sections, m.renderToast(t))
	}

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("AGROVISION")
	if m.hasLocation {
		name := m.location.Name
		if name == "" {
			name = m.location.String()
		}
		title += ui.DimStyle.Render(" · " + name)
	}
	return title
}

func (m Model) renderStatusBar() string {
	style := ui.ConnectionStyle(m.connState)
	var conn string
	switch m.connState {
	case channel.Reconnecting.String():
		conn = style.Render(fmt.Sprintf("◐ RECONNECTING %d/%d", m.connAttempt, m.connMax))
	case channel.Connecting.String():
		conn = style.Render("◐ CONNECTING")
	case channel.Connected.String():
		conn = style.Render("● LIVE")
	case channel.Failed.String():
		conn = style.Render("✕ OFFLINE")
	default:
		conn = style.Render("○ DISCONNECTED")
	}
	if m.connState == channel.Connecting.String() || m.connState == channel.Reconnecting.String() {
		conn = m.spinner.View() + " " + conn
	}

	parts := []string{conn}
	parts = append(parts, ui.DimStyle.Render(fmt.Sprintf("%d cameras", len(m.frames.Streams()))))
	parts = append(parts, ui.DimStyle.Render(fmt.Sprintf("%d alerts", m.alerts.Len())))

	if m.speak {
		parts = append(parts, ui.DimStyle.Render("voice on"))
	} else {
		parts = append(parts, ui.DimStyle.Render("muted"))
	}
	if m.recorder != nil {
		parts = append(parts, ui.RecordingDotStyle.Render("● REC"))
	}
	if n := m.chat.InFlight(); n > 0 {
		parts = append(parts, ui.SpinnerStyle.Render(fmt.Sprintf("⟳ %d", n)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderMainContent() string {
	leftW := m.leftPanelWidth()
	rightW := m.rightPanelWidth()
	contentH := m.contentHeight()

	left := strings.Split(m.renderLeftPanel(leftW, contentH), "\n")
	right := strings.Split(m.renderRightPanel(rightW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")
	rows := make([]string, 0, contentH)
	for i := 0; i < contentH; i++ {
		l := strings.Repeat(" ", leftW)
		if i < len(left) {
			l = padRight(left[i], leftW)
		}
		r := ""
		if i < len(right) {
			r = right[i]
		}
		rows = append(rows, l+divider+r)
	}
	return strings.Join(rows, "\n")
}

// renderLeftPanel stacks the alert list above the camera feeds.
func (m Model) renderLeftPanel(width, height int) string {
	lines := m.alertLines(width)
	lines = append(lines, "")
	lines = append(lines, m.cameraLines(width)...)
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) alertLines(width int) []string {
	list := m.alerts.List()
	lines := []string{ui.PanelTitleStyle.Render(fmt.Sprintf("ALERTS (%d)", len(list)))}
	if len(list) == 0 {
		return append(lines, ui.DimStyle.Render("  No active alerts"))
	}
	for _, a := range list {
		sev := ui.SeverityStyle(string(a.Level())).Render(fmt.Sprintf("%-6s", strings.ToUpper(string(a.Level()))))
		ts := ui.TimestampStyle.Render(a.InsertedAt.Format("15:04"))
		line := fmt.Sprintf("  %s %s %s", ts, sev, a.Message)
		lines = append(lines, truncateToWidth(line, width))
	}
	return lines
}

func (m Model) cameraLines(width int) []string {
	streams := m.frames.Streams()
	lines := []string{ui.PanelTitleStyle.Render(fmt.Sprintf("CAMERAS (%d)", len(streams)))}
	if len(streams) == 0 {
		waiting := "  Waiting for camera frames..."
		if n := len(m.shared.Snapshot().Cameras); n > 0 {
			waiting = fmt.Sprintf("  %d cameras announced, waiting for frames...", n)
		}
		return append(lines, ui.DimStyle.Render(waiting))
	}
	for _, s := range streams {
		lines = append(lines, m.cameraHeader(s, width))
		switch {
		case s.Target.Visible && s.Target.Thumbnail != nil:
			lines = append(lines, strings.Split(ui.RenderHalfBlocks(s.Target.Thumbnail.Img), "\n")...)
		case s.Target.Err != "":
			lines = append(lines, ui.ErrorTextStyle.Render(truncateToWidth("  no picture: "+s.Target.Err, width)))
		default:
			lines = append(lines, ui.DimStyle.Render("  decoding..."))
		}
	}
	return lines
}

func (m Model) cameraHeader(s *frames.Stream, width int) string {
	badge := ui.LiveBadgeStyle.Render("LIVE")
	if m.frames.IsStale(s.CameraID, m.now) {
		badge = ui.StaleBadgeStyle.Render("STALE")
	}
	line := "  cam " + s.CameraID + " " + badge
	if label := frames.Label(s.Detections); label != "" {
		line += ui.DimStyle.Render(" " + label)
	}
	return truncateToWidth(line, width)
}

// renderRightPanel shows weather and advice above the chat.
func (m Model) renderRightPanel(width, height int) string {
	lines := m.weatherLines(width)
	for len(lines) < weatherRows {
		lines = append(lines, "")
	}
	lines = lines[:weatherRows]

	title := "CHAT"
	if m.focus == FocusChat {
		lines = append(lines, ui.PanelTitleActiveStyle.Render(title))
	} else {
		lines = append(lines, ui.PanelTitleStyle.Render(title))
	}
	lines = append(lines, strings.Split(m.chatView.View(), "\n")...)

	input := m.chatInput.View()
	if m.voiceStatus != "" {
		input = ui.DimStyle.Render(m.voiceStatus)
	}
	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	lines = append(lines[:height-1], input)
	return strings.Join(lines, "\n")
}

func (m Model) weatherLines(width int) []string {
	lines := []string{ui.PanelTitleStyle.Render("WEATHER")}
	switch {
	case !m.hasLocation:
		return append(lines, ui.DimStyle.Render("  No location set. Press l to choose one."))
	case m.weatherLoading:
		return append(lines, "  "+m.spinner.View()+" Loading weather...")
	case m.weatherErr != "":
		return append(lines, ui.ErrorTextStyle.Render(truncateToWidth("  "+m.weatherErr, width)))
	case m.weather == nil:
		return append(lines, ui.DimStyle.Render("  Press w to load weather"))
	}

	w := m.weather
	lines = append(lines, truncateToWidth(fmt.Sprintf("  %.1f°C  %s", w.Temp, w.Description), width))
	lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("  humidity %.0f%%  wind %.1f m/s", w.Humidity, w.WindSpeed)))

	switch {
	case m.adviceLoading:
		lines = append(lines, "  "+m.spinner.View()+" Getting advice...")
	case m.adviceErr != "":
		lines = append(lines, ui.ErrorTextStyle.Render(truncateToWidth("  advice: "+m.adviceErr, width)))
	case m.advice != "":
		for _, l := range wrapText(m.advice, max(10, width-2)) {
			lines = append(lines, "  "+l)
		}
	}
	return lines
}

func (m Model) renderLocationPrompt() string {
	lines := []string{
		ui.PanelTitleActiveStyle.Render("SET FARM LOCATION"),
		"",
		ui.DimStyle.Render("  Enter latitude, longitude and an optional name."),
		"",
		"  " + m.locInput.View(),
		"",
	}
	if m.detecting {
		lines = append(lines, "  "+m.spinner.View()+" Detecting location...")
	}
	if m.locError != "" {
		lines = append(lines, ui.ErrorTextStyle.Render("  "+m.locError))
	}
	h := m.contentHeight()
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines[:h], "\n")
}

func (m Model) renderToast(t toast) string {
	sev := ui.SeverityStyle(string(t.alert.Level())).Render(strings.ToUpper(string(t.alert.Level())))
	text := sev + " " + t.alert.Message
	if t.alert.CameraID != "" {
		text += ui.DimStyle.Render(" (cam " + string(t.alert.CameraID) + ")")
	}
	return "▶ " + truncateToWidth(text, m.width-2)
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	switch {
	case m.locPhase == locationPrompt:
		parts = append(parts, key("Enter", "Save"), key("Ctrl+D", "Detect"), key("Esc", "Skip"))
	case m.focus == FocusChat:
		parts = append(parts, key("Enter", "Send"), key("Ctrl+R", "Voice"), key("↑↓", "Scroll"), key("Esc", "Back"))
	default:
		parts = append(parts, key("Tab", "Chat"), key("l", "Location"), key("w", "Weather"), key("v", "Voice"))
		if m.speak {
			parts = append(parts, key("m", "Mute"))
		} else {
			parts = append(parts, key("m", "Unmute"))
		}
		if m.connState == channel.Failed.String() {
			parts = append(parts, key("r", "Retry"))
		}
		parts = append(parts, key("q", "Quit"))
	}
	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len([]rune(current))+1+len([]rune(word)) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
