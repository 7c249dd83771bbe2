package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/codechrono/chrono/internal/server"
	"github.com/codechrono/chrono/internal/timer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	clockStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7DC6F"))
	runningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	pausedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Width(12)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#874BFD")).Padding(0, 1)
)

// formatClock renders seconds as MM:SS, or H:MM:SS from an hour up.
func formatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatTotal renders a duration in seconds as "1h 05m" or "12m".
func formatTotal(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

// formatAgo formats how long ago t was: "just now", "5m ago", "3d ago".
func formatAgo(d time.Duration) string {
	switch {
	case d < 0:
		return "in the future"
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func stateLabel(s timer.Snapshot) string {
	switch {
	case !s.TaskActive:
		return mutedStyle.Render("idle")
	case s.Paused:
		return pausedStyle.Render("paused")
	default:
		return runningStyle.Render("running")
	}
}

func phaseLabel(p timer.Phase) string {
	switch p {
	case timer.ShortBreak:
		return "short break"
	case timer.LongBreak:
		return "long break"
	default:
		return "work"
	}
}

// progressBar draws the elapsed share of the session.
func progressBar(s timer.Snapshot, width int) string {
	if s.SessionDuration <= 0 {
		return strings.Repeat("░", width)
	}
	done := int(int64(width) * (s.SessionDuration - s.Remaining) / s.SessionDuration)
	if done < 0 {
		done = 0
	}
	if done > width {
		done = width
	}
	return barStyle.Render(strings.Repeat("█", done)) + strings.Repeat("░", width-done)
}

func renderSnapshot(w io.Writer, s timer.Snapshot) {
	task := s.ActiveTaskName
	if task == "" {
		task = mutedStyle.Render("(none)")
	}
	lines := []string{
		clockStyle.Render(formatClock(s.Remaining)) + "  " + stateLabel(s),
		progressBar(s, 30),
		labelStyle.Render("Phase") + phaseLabel(s.Phase),
		labelStyle.Render("Task") + task,
	}
	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func renderStatus(w io.Writer, st server.StatusResponse) {
	fmt.Fprintln(w, titleStyle.Render("chrono host"))
	renderSnapshot(w, st.Timer)

	auth := "off"
	if st.RequireAuth {
		auth = "required"
	}
	rows := [][2]string{
		{"Address", st.ListeningAddress},
		{"Clients", fmt.Sprintf("%d", st.ConnectedClients)},
		{"Uptime", formatTotal(st.UptimeSeconds)},
		{"Auth", auth},
	}
	if st.TLS {
		rows = append(rows, [2]string{"TLS", "on"})
	}
	if st.PairingActive {
		rows = append(rows, [2]string{"Pairing", "code active"})
	}
	if st.KeepAwake != nil {
		ka := string(st.KeepAwake.State)
		if st.KeepAwake.Reason != "" {
			ka += " (" + string(st.KeepAwake.Reason) + ")"
		}
		rows = append(rows, [2]string{"Keep awake", ka})
	}
	for _, r := range rows {
		fmt.Fprintln(w, labelStyle.Render(r[0])+r[1])
	}
}
