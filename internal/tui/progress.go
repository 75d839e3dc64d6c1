package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
)

type statusMsg index.Status

type rebuildDoneMsg struct {
	stats index.Stats
	err   error
}

type progressModel struct {
	bar     progress.Model
	status  index.Status
	started time.Time
	now     func() time.Time
	done    *rebuildDoneMsg
	hidden  bool
}

func newProgressModel(now func() time.Time) progressModel {
	return progressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		status:  index.Status{State: index.StateIndexing},
		started: now(),
		now:     now,
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-4, 80), 10)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Hide) {
			m.hidden = true
			return m, tea.Quit
		}

	case statusMsg:
		m.status = index.Status(msg)
		return m, nil

	case rebuildDoneMsg:
		m.done = &msg
		return m, tea.Quit
	}
	return m, nil
}

// fraction is the completed share of the rebuild, in [0, 1].
func (m progressModel) fraction() float64 {
	if m.done != nil && m.done.err == nil {
		return 1
	}
	if m.status.TotalFiles == 0 {
		return 0
	}
	return min(m.status.ProcessedFiles/float64(m.status.TotalFiles), 1)
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Indexing LM Studio logs"))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.fraction()))
	b.WriteString("\n\n")

	st := m.status
	fmt.Fprintf(&b, "files    %.1f / %d\n", st.ProcessedFiles, st.TotalFiles)
	fmt.Fprintf(&b, "sessions %s\n", humanize.Comma(int64(st.SessionsIndexed)))
	if st.CurrentFile != "" {
		fmt.Fprintf(&b, "current  %s\n", filepath.Base(st.CurrentFile))
	}
	fmt.Fprintf(&b, "elapsed  %s\n", m.now().Sub(m.started).Round(100*time.Millisecond))

	switch {
	case m.done != nil && m.done.err != nil:
		b.WriteString("\n" + styleError.Render("rebuild failed: "+m.done.err.Error()) + "\n")
	case m.done != nil:
		b.WriteString("\n" + m.done.stats.String() + "\n")
	default:
		b.WriteString("\n" + styleStatusBar.Render("q hide (indexing continues)") + "\n")
	}
	return b.String()
}

// RunRebuild runs a rebuild through svc while drawing its progress. Leaving
// the view early does not stop the rebuild; RunRebuild still waits for it.
func RunRebuild(ctx context.Context, svc *index.Service, opts index.Options) (*index.Index, index.Stats, error) {
	p := tea.NewProgram(newProgressModel(time.Now), tea.WithContext(ctx))
	svc.OnProgress(func(st index.Status) {
		p.Send(statusMsg(st))
	})

	type result struct {
		ix    *index.Index
		stats index.Stats
		err   error
	}
	resc := make(chan result, 1)
	go func() {
		ix, stats, err := svc.Rebuild(ctx, opts)
		p.Send(rebuildDoneMsg{stats: stats, err: err})
		resc <- result{ix, stats, err}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return nil, index.Stats{}, fmt.Errorf("tui: %w", err)
	}
	r := <-resc
	return r.ix, r.stats, r.err
}
