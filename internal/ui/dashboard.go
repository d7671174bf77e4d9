package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/microrun/internal/browser"
	"github.com/harshul/microrun/internal/launchsettings"
	"github.com/harshul/microrun/internal/project"
)

// Controller is the part of the orchestrator the dashboard drives.
type Controller interface {
	Projects() []project.Snapshot
	Subscribe() (<-chan []project.Snapshot, func())
	Profiles(id string) (launchsettings.Set, bool)
	Toggle(ctx context.Context, id string) error
	StartAll(ctx context.Context) []project.Result
	StopAll(ctx context.Context) []project.Result
	SetBatchSelected(id string, checked bool) error
	SelectConfiguration(id, profile string) error
	ReloadProfiles(id string) error
	Usage(id string) (project.Usage, error)
	Shutdown(ctx context.Context) error
}

// DashboardModel is the main bubbletea model for the TUI dashboard
type DashboardModel struct {
	ctx    context.Context
	ctrl   Controller
	logs   *LogMultiplexer
	opener browser.Opener

	projects      []project.Snapshot
	usage         map[string]project.Usage
	selectedIndex int
	focusedID     string // project whose logs are shown, "" for the list

	resources ResourceStats

	status    string
	statusErr bool

	width    int
	height   int
	viewport viewport.Model
	showHelp bool
	quitting bool

	snapshots   <-chan []project.Snapshot
	unsubscribe func()
	updateChan  chan tea.Msg

	keys   keyMap
	styles *Styles
}

// keyMap defines the key bindings for the dashboard
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	Batch    key.Binding
	Config   key.Binding
	Reload   key.Binding
	StartAll key.Binding
	StopAll  key.Binding
	Logs     key.Binding
	Escape   key.Binding
	OpenURL  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter", "s"),
			key.WithHelp("enter/s", "start/stop"),
		),
		Batch: key.NewBinding(
			key.WithKeys(" ", "space"),
			key.WithHelp("space", "check"),
		),
		Config: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "next profile"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload profiles"),
		),
		StartAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "start checked"),
		),
		StopAll: key.NewBinding(
			key.WithKeys("x", "ctrl+x"),
			key.WithHelp("x", "stop checked"),
		),
		Logs: key.NewBinding(
			key.WithKeys("l", "tab"),
			key.WithHelp("l", "logs"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		OpenURL: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Styles holds all lipgloss styles for the dashboard
type Styles struct {
	App    lipgloss.Style
	Header lipgloss.Style
	Footer lipgloss.Style

	ProjectList     lipgloss.Style
	ProjectItem     lipgloss.Style
	ProjectSelected lipgloss.Style

	StateStopped  lipgloss.Style
	StateBuilding lipgloss.Style
	StateStarting lipgloss.Style
	StateRunning  lipgloss.Style
	StateError    lipgloss.Style

	MonitorBox    lipgloss.Style
	ProgressFill  lipgloss.Style
	ProgressEmpty lipgloss.Style

	LogViewport lipgloss.Style
	Dim         lipgloss.Style

	HelpKey  lipgloss.Style
	HelpDesc lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	highlight := lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	success := lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}
	info := lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}

	return &Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle).
			MarginBottom(1).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Foreground(subtle).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle).
			MarginTop(1).
			Padding(0, 1),

		ProjectList: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1),

		ProjectItem: lipgloss.NewStyle().
			Padding(0, 1),

		ProjectSelected: lipgloss.NewStyle().
			Padding(0, 1).
			Background(lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#333333"}).
			Bold(true),

		StateStopped: lipgloss.NewStyle().
			Foreground(subtle),

		StateBuilding: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FF9900", Dark: "#FFCC00"}),

		StateStarting: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9933FF", Dark: "#CC99FF"}),

		StateRunning: lipgloss.NewStyle().
			Foreground(info).
			Bold(true),

		StateError: lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true),

		MonitorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1).
			MarginTop(1),

		ProgressFill: lipgloss.NewStyle().
			Foreground(success),

		ProgressEmpty: lipgloss.NewStyle().
			Foreground(subtle),

		LogViewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1),

		Dim: lipgloss.NewStyle().
			Foreground(subtle),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpDesc: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// Messages for bubbletea
type tickMsg time.Time
type resourceUpdateMsg ResourceStats
type usageMsg map[string]project.Usage
type snapshotMsg []project.Snapshot
type logMsg struct {
	id string
}
type actionDoneMsg struct {
	label string
	err   error
}
type batchDoneMsg struct {
	label   string
	results []project.Result
}

// NewDashboard creates a dashboard over ctrl. logs may be nil, in which case
// the log view stays empty.
func NewDashboard(ctx context.Context, ctrl Controller, logs *LogMultiplexer, opener browser.Opener) *DashboardModel {
	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	m := &DashboardModel{
		ctx:        ctx,
		ctrl:       ctrl,
		logs:       logs,
		opener:     opener,
		projects:   ctrl.Projects(),
		usage:      map[string]project.Usage{},
		viewport:   vp,
		keys:       defaultKeyMap(),
		styles:     DefaultStyles(),
		updateChan: make(chan tea.Msg, 100),
	}
	m.snapshots, m.unsubscribe = ctrl.Subscribe()
	if logs != nil {
		logs.SetNotify(func(id, _ string) { m.sendLog(id) })
	}
	return m
}

// sendLog wakes the model for new output. Lines are read from the
// multiplexer, so a dropped wake-up only delays the redraw to the next tick.
func (m *DashboardModel) sendLog(id string) {
	select {
	case m.updateChan <- logMsg{id: id}:
	default:
	}
}

// Init implements tea.Model
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.fetchResourceStats(),
		m.listenForSnapshots(),
		m.listenForUpdates(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *DashboardModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *DashboardModel) listenForSnapshots() tea.Cmd {
	ch := m.snapshots
	return func() tea.Msg {
		list, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(list)
	}
}

// Update implements tea.Model
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.focusedID != "" {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-6, 20)
		m.viewport.Height = max(msg.Height-12, 5)
		m.updateViewportContent()

	case tickMsg:
		m.updateViewportContent()
		return m, tea.Batch(tickCmd(), m.fetchResourceStats(), m.fetchUsage())

	case resourceUpdateMsg:
		m.resources = ResourceStats(msg)

	case usageMsg:
		m.usage = msg

	case snapshotMsg:
		m.setProjects(msg)
		return m, m.listenForSnapshots()

	case logMsg:
		if msg.id == m.focusedID {
			m.updateViewportContent()
		}
		return m, m.listenForUpdates()

	case actionDoneMsg:
		if msg.err != nil {
			m.setStatus(Describe(msg.err), true)
		} else if msg.label != "" {
			m.setStatus(msg.label, false)
		}

	case batchDoneMsg:
		m.setStatus(summarize(msg.label, msg.results))
	}
	return m, nil
}

func (m *DashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.focusedID = ""
		return m, nil

	case key.Matches(msg, m.keys.Logs):
		if m.focusedID != "" {
			m.focusedID = ""
		} else if p, ok := m.selected(); ok {
			m.focusedID = p.ID
			m.viewport.GotoBottom()
			m.updateViewportContent()
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.focusedID != "" {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.focusedID != "" {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.selectedIndex < len(m.projects)-1 {
			m.selectedIndex++
		}
		return m, nil

	case key.Matches(msg, m.keys.StartAll):
		return m, m.batch("start", m.ctrl.StartAll)

	case key.Matches(msg, m.keys.StopAll):
		return m, m.batch("stop", m.ctrl.StopAll)
	}

	p, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Toggle):
		return m, m.toggle(p)
	case key.Matches(msg, m.keys.Batch):
		return m, m.action("", func() error { return m.ctrl.SetBatchSelected(p.ID, !p.BatchSelected) })
	case key.Matches(msg, m.keys.Config):
		next, ok := nextProfile(p)
		if !ok {
			m.setStatus(p.Name()+": no launch profiles", true)
			return m, nil
		}
		return m, m.action(p.Name()+": profile "+next, func() error { return m.ctrl.SelectConfiguration(p.ID, next) })
	case key.Matches(msg, m.keys.Reload):
		return m, m.action(p.Name()+": profiles reloaded", func() error { return m.ctrl.ReloadProfiles(p.ID) })
	case key.Matches(msg, m.keys.OpenURL):
		return m, m.openURL(p)
	}
	return m, nil
}

func (m *DashboardModel) action(label string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{label: label, err: fn()}
	}
}

func (m *DashboardModel) batch(label string, fn func(context.Context) []project.Result) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return batchDoneMsg{label: label, results: fn(ctx)}
	}
}

func (m *DashboardModel) toggle(p project.Snapshot) tea.Cmd {
	if p.State.Busy() {
		m.setStatus(p.Name()+" is "+strings.ToLower(p.State.String()), false)
		return nil
	}
	label := p.Name() + " started"
	if p.State == project.Running {
		label = p.Name() + " stopped"
	}
	ctx := m.ctx
	return m.action(label, func() error { return m.ctrl.Toggle(ctx, p.ID) })
}

func (m *DashboardModel) openURL(p project.Snapshot) tea.Cmd {
	url := m.browseURL(p)
	if url == "" {
		m.setStatus(p.Name()+": profile has no URL", true)
		return nil
	}
	if m.opener == nil {
		m.setStatus(url, false)
		return nil
	}
	return m.action("opened "+url, func() error { return m.opener.Open(url) })
}

func (m *DashboardModel) browseURL(p project.Snapshot) string {
	set, ok := m.ctrl.Profiles(p.ID)
	if !ok {
		return ""
	}
	prof, ok := set.Get(p.SelectedProfile)
	if !ok {
		return ""
	}
	return prof.BrowseURL()
}

// nextProfile cycles through the profile names of p.
func nextProfile(p project.Snapshot) (string, bool) {
	if len(p.Profiles) == 0 {
		return "", false
	}
	for i, name := range p.Profiles {
		if name == p.SelectedProfile {
			return p.Profiles[(i+1)%len(p.Profiles)], true
		}
	}
	return p.Profiles[0], true
}

func summarize(label string, results []project.Result) (string, bool) {
	done, skipped := 0, 0
	var failed []string
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed = append(failed, project.Name(r.ID))
		case r.Skipped:
			skipped++
		default:
			done++
		}
	}
	if len(results) == 0 {
		return "no checked projects", false
	}
	msg := fmt.Sprintf("%s: %d done, %d skipped", label, done, skipped)
	if len(failed) > 0 {
		msg += ", failed: " + strings.Join(failed, ", ")
	}
	return msg, len(failed) > 0
}

func (m *DashboardModel) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

func (m *DashboardModel) setProjects(list []project.Snapshot) {
	var current string
	if p, ok := m.selected(); ok {
		current = p.ID
	}
	m.projects = list
	m.selectedIndex = 0
	for i, p := range list {
		if p.ID == current {
			m.selectedIndex = i
		}
	}
	if m.focusedID != "" && !m.tracked(m.focusedID) {
		m.focusedID = ""
	}
}

func (m *DashboardModel) tracked(id string) bool {
	for _, p := range m.projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (m *DashboardModel) selected() (project.Snapshot, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.projects) {
		return project.Snapshot{}, false
	}
	return m.projects[m.selectedIndex], true
}

func (m *DashboardModel) fetchResourceStats() tea.Cmd {
	return func() tea.Msg {
		return resourceUpdateMsg(GetResourceStats())
	}
}

// fetchUsage samples every running project.
func (m *DashboardModel) fetchUsage() tea.Cmd {
	var running []string
	for _, p := range m.projects {
		if p.State == project.Running {
			running = append(running, p.ID)
		}
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		out := make(usageMsg, len(running))
		for _, id := range running {
			if u, err := ctrl.Usage(id); err == nil {
				out[id] = u
			}
		}
		return out
	}
}

func (m *DashboardModel) updateViewportContent() {
	if m.focusedID == "" || m.logs == nil {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.logs.Lines(m.focusedID), "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model
func (m *DashboardModel) View() string {
	if m.quitting {
		return "Stopping projects...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.focusedID != "" {
		b.WriteString(m.renderFocusedView())
	} else {
		b.WriteString(m.renderProjectList())
		b.WriteString("\n")
		b.WriteString(m.renderResourceMonitor())
	}
	if m.status != "" {
		style := m.styles.Dim
		if m.statusErr {
			style = m.styles.StateError
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return m.styles.App.Render(b.String())
}

func (m *DashboardModel) renderHeader() string {
	title := "MicroRun"

	running := 0
	for _, p := range m.projects {
		if p.State == project.Running {
			running++
		}
	}
	status := fmt.Sprintf("Projects: %d | Running: %d", len(m.projects), running)
	if m.resources.CPUPercent > 0 {
		status += fmt.Sprintf(" | CPU: %.1f%%", m.resources.CPUPercent)
	}
	if m.resources.MemPercent > 0 {
		status += fmt.Sprintf(" | Mem: %.1f%%", m.resources.MemPercent)
	}
	if m.resources.CPUTemp > 0 {
		status += fmt.Sprintf(" | Temp: %.0f°C", m.resources.CPUTemp)
	}

	headerWidth := max(m.width-4, 40)
	padding := max(headerWidth-lipgloss.Width(title)-lipgloss.Width(status), 1)
	return m.styles.Header.Width(headerWidth).Render(
		title + strings.Repeat(" ", padding) + status,
	)
}

func (m *DashboardModel) renderProjectList() string {
	listWidth := max(m.width-6, 60)
	if len(m.projects) == 0 {
		return m.styles.ProjectList.Width(listWidth).Render(
			m.styles.Dim.Render("No projects tracked. Add one with `microrun add <project file>`."))
	}

	items := make([]string, 0, len(m.projects))
	for i, p := range m.projects {
		items = append(items, m.renderProjectItem(i, p, listWidth))
	}
	return m.styles.ProjectList.Width(listWidth).Render(strings.Join(items, "\n"))
}

func (m *DashboardModel) renderProjectItem(index int, p project.Snapshot, width int) string {
	style := m.styles.ProjectItem
	if index == m.selectedIndex {
		style = m.styles.ProjectSelected
	}

	check := "[ ]"
	if p.BatchSelected {
		check = "[x]"
	}
	profile := p.SelectedProfile
	if profile == "" {
		profile = "-"
	}

	line := fmt.Sprintf("%s %-24s %-18s %s", check, truncate(p.Name(), 24), truncate(profile, 18), m.renderState(p))
	if p.State == project.Running {
		if u, ok := m.usage[p.ID]; ok {
			line += m.styles.Dim.Render("  " + FormatUsage(u))
		}
	}
	if p.Err != nil {
		line += "  " + m.styles.StateError.Render(truncate(Describe(p.Err), max(width-80, 30)))
	}
	return style.Width(width - 2).Render(line)
}

func (m *DashboardModel) renderState(p project.Snapshot) string {
	var style lipgloss.Style
	var icon string

	switch p.State {
	case project.Running:
		style, icon = m.styles.StateRunning, "●"
	case project.Building:
		style, icon = m.styles.StateBuilding, "🔨"
	case project.Starting:
		style, icon = m.styles.StateStarting, "◌"
	default:
		style, icon = m.styles.StateStopped, "○"
		if p.Err != nil {
			style, icon = m.styles.StateError, "✗"
		}
	}
	text := fmt.Sprintf("%s %-8s", icon, p.State)
	if p.State == project.Running && p.PID > 0 {
		text += fmt.Sprintf(" pid %d", p.PID)
	}
	return style.Render(text)
}

func (m *DashboardModel) renderResourceMonitor() string {
	parts := []string{
		m.renderProgressBar("CPU", m.resources.CPUPercent/100, 20),
		m.renderProgressBar("Mem", m.resources.MemPercent/100, 20),
	}
	if m.resources.MemoryTotal > 0 {
		parts = append(parts, m.styles.Dim.Render(FormatBytes(m.resources.MemoryUsed)+" / "+FormatBytes(m.resources.MemoryTotal)))
	}
	return m.styles.MonitorBox.Render(strings.Join(parts, "  "))
}

func (m *DashboardModel) renderProgressBar(label string, progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	bar := m.styles.ProgressFill.Render(strings.Repeat("█", filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s [%s] %5.1f%%", label, bar, progress*100)
}

func (m *DashboardModel) renderFocusedView() string {
	var p project.Snapshot
	for _, s := range m.projects {
		if s.ID == m.focusedID {
			p = s
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 %s | %s | %s", p.Name(), p.SelectedProfile, m.renderState(p)))
	if url := m.browseURL(p); url != "" {
		b.WriteString(m.styles.StateRunning.Render(" → " + url))
	}
	b.WriteString("\n\n")

	viewportWidth := max(m.width-6, 60)
	m.viewport.Width = viewportWidth
	b.WriteString(m.styles.LogViewport.Width(viewportWidth).Render(m.viewport.View()))
	return b.String()
}

func (m *DashboardModel) renderFooter() string {
	bindings := []key.Binding{m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.Batch, m.keys.Logs, m.keys.Help, m.keys.Quit}
	if m.showHelp {
		bindings = []key.Binding{
			m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.Batch, m.keys.Config, m.keys.Reload,
			m.keys.StartAll, m.keys.StopAll, m.keys.Logs, m.keys.Escape, m.keys.OpenURL, m.keys.Help, m.keys.Quit,
		}
	}
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, m.styles.HelpKey.Render(h.Key)+" "+m.styles.HelpDesc.Render(h.Desc))
	}
	return m.styles.Footer.Render(strings.Join(parts, "  "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
