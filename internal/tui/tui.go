package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/search"
)

const debounceDelay = 200 * time.Millisecond

// message types

type searchResultMsg struct {
	query   string
	results []search.Result
	err     error
}

type debounceTickMsg struct {
	query string
}

// model

type model struct {
	ix          *index.Index
	names       map[string]string
	searchOpts  search.Options
	query       string
	results     []search.Result
	cursor      int
	listOffset  int
	filterInput textinput.Model
	preview     viewport.Model
	previewKey  string // session id shown in the preview
	width       int
	height      int
	ready       bool
	quitting    bool
	searchErr   error
	chosen      *search.Result
}

func initialModel(ix *index.Index, names map[string]string, opts search.Options) model {
	ti := textinput.New()
	ti.Placeholder = "Filter sessions..."
	ti.Focus()
	ti.SetValue(opts.Query)
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 256

	return model{
		ix:          ix,
		names:       names,
		searchOpts:  opts,
		query:       opts.Query,
		filterInput: ti,
		preview:     viewport.New(0, 0),
	}
}

// Browse runs the interactive session browser and blocks until it exits.
// Choosing a session copies its id to the clipboard.
func Browse(ix *index.Index, names map[string]string, opts search.Options) error {
	m := initialModel(ix, names, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	fm := finalModel.(model)
	if fm.chosen != nil {
		return copySessionID(fm.chosen.Item.SessionID)
	}
	return nil
}

func copySessionID(id string) error {
	if err := clipboard.WriteAll(id); err != nil {
		fmt.Printf("%s\n", id)
		return nil
	}
	fmt.Printf("Copied to clipboard: %s\n", id)
	return nil
}

// Init triggers the initial list load.
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.doSearch(m.query))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.preview = newViewport(m.previewWidth(), m.panelHeight())
		m.previewKey = ""
		return m, m.loadCurrentPreview()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case debounceTickMsg:
		// the query moved on since this tick was scheduled
		if msg.query != m.query {
			return m, nil
		}
		return m, m.doSearch(msg.query)

	case searchResultMsg:
		return m.applyResults(msg)

	case previewRenderedMsg:
		if sel, ok := m.selected(); !ok || sel.Item.SessionID != msg.sessionID {
			return m, nil
		}
		if msg.err != nil {
			m.preview.SetContent(styleError.Render("Preview error: " + msg.err.Error()))
		} else {
			m.preview.SetContent(msg.content)
			m.preview.GotoTop()
		}
		m.previewKey = msg.sessionID
		return m, nil
	}
	return m, nil
}

func (m model) selected() (search.Result, bool) {
	if m.cursor < 0 || m.cursor >= len(m.results) {
		return search.Result{}, false
	}
	return m.results[m.cursor], true
}

// moveCursor selects item i, clamped to the result list.
func (m model) moveCursor(i int) (model, tea.Cmd) {
	i = min(max(i, 0), len(m.results)-1)
	if i < 0 || i == m.cursor {
		return m, nil
	}
	m.cursor = i
	m.adjustListScroll(m.panelHeight())
	return m, m.loadCurrentPreview()
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	half := max(m.panelHeight()/2, 1)
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Enter):
		if sel, ok := m.selected(); ok {
			m.chosen = &sel
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case key.Matches(msg, keys.Up):
		return m.moveCursor(m.cursor - 1)
	case key.Matches(msg, keys.Down):
		return m.moveCursor(m.cursor + 1)
	case key.Matches(msg, keys.PreviewUp):
		m.preview.LineUp(half)
		return m, nil
	case key.Matches(msg, keys.PreviewDn):
		m.preview.LineDown(half)
		return m, nil
	case key.Matches(msg, keys.PageUp):
		m.preview.LineUp(m.panelHeight())
		return m, nil
	case key.Matches(msg, keys.PageDown):
		m.preview.LineDown(m.panelHeight())
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if q := m.filterInput.Value(); q != m.query {
		m.query = q
		return m, tea.Batch(cmd, scheduleDebouncedSearch(q))
	}
	return m, cmd
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !m.ready || len(m.results) == 0 {
		return m, nil
	}

	region, itemIdx := m.hitTest(msg.X, msg.Y)
	wheel := msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown

	switch region {
	case regionList:
		switch {
		case msg.Button == tea.MouseButtonWheelUp:
			m.listOffset = max(m.listOffset-1, 0)
		case msg.Button == tea.MouseButtonWheelDown:
			maxOffset := max(len(m.results)-m.panelHeight()/linesPerItem, 0)
			m.listOffset = min(m.listOffset+1, maxOffset)
		case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			if itemIdx < len(m.results) {
				return m.moveCursor(itemIdx)
			}
		}
	case regionPreview:
		if wheel {
			var cmd tea.Cmd
			m.preview, cmd = m.preview.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m model) applyResults(msg searchResultMsg) (tea.Model, tea.Cmd) {
	if msg.query != m.query {
		return m, nil
	}
	m.cursor, m.listOffset = 0, 0
	m.previewKey = ""
	m.searchErr = msg.err
	if msg.err != nil {
		m.results = nil
		m.preview.SetContent(styleError.Render("Error: " + msg.err.Error()))
		return m, nil
	}
	m.results = msg.results
	if len(m.results) == 0 {
		m.preview.SetContent("")
		return m, nil
	}
	return m, m.loadCurrentPreview()
}

// View renders the full TUI.
func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	listW := m.listWidth()
	previewW := m.previewWidth()
	panelH := m.panelHeight()

	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(m.renderList(listW, panelH))

	m.preview.Width = previewW
	m.preview.Height = panelH
	previewPanel := styleActiveBorder.
		Width(previewW).
		Height(panelH).
		Render(m.preview.View())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, previewPanel)
	return lipgloss.JoinVertical(lipgloss.Left, m.filterInput.View(), panels, m.statusBar())
}

// helper methods

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	// 40% for list, minus border padding
	return max(m.width*40/100-4, 20)
}

func (m model) previewWidth() int {
	if m.width <= 0 {
		return 60
	}
	return max(m.width*60/100-4, 20)
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// input row (1) + status bar (1) + borders (4)
	return max(m.height-6, 5)
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	contentYStart := 2 // input row (1) + top border (1)
	contentYEnd := contentYStart + m.panelHeight() - 1

	if y < contentYStart || y > contentYEnd {
		return regionNone, -1
	}
	relY := y - contentYStart

	lw := m.listWidth()
	if x >= 1 && x <= lw {
		return regionList, m.listOffset + relY/linesPerItem
	}
	if x > lw+2 {
		return regionPreview, -1
	}
	return regionNone, -1
}

func (m model) statusBar() string {
	count := fmt.Sprintf("%d of %d sessions", len(m.results), m.ix.Len())
	if m.searchErr != nil {
		count = styleError.Render("filter error")
	}
	parts := []string{count}
	if f := activeFilters(m.searchOpts); f != "" {
		parts = append(parts, f)
	}
	parts = append(parts, "up/dn select", "C-u/C-d preview", "enter copy id", "esc quit")
	return styleStatusBar.Render(strings.Join(parts, " | "))
}

// activeFilters describes the fixed filters given on the command line.
func activeFilters(o search.Options) string {
	var f []string
	if o.Model != "" {
		f = append(f, "model~"+o.Model)
	}
	if o.Client != "" {
		f = append(f, "client="+o.Client)
	}
	if o.Since != "" {
		f = append(f, "since "+o.Since)
	}
	return strings.Join(f, " ")
}

func (m model) doSearch(query string) tea.Cmd {
	ix, names := m.ix, m.names
	opts := m.searchOpts
	opts.Query = query
	return func() tea.Msg {
		results, err := search.Search(ix, names, opts)
		return searchResultMsg{query: query, results: results, err: err}
	}
}

func scheduleDebouncedSearch(query string) tea.Cmd {
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceTickMsg{query: query}
	})
}

func (m model) loadCurrentPreview() tea.Cmd {
	if len(m.results) == 0 || m.cursor >= len(m.results) {
		return nil
	}
	r := m.results[m.cursor]
	if r.Item.SessionID == m.previewKey {
		return nil
	}
	return loadPreviewCmd(m.ix, r, m.names[r.Item.Group.SessionGroupID], m.query, m.previewWidth())
}
