package tui

import (
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/render"
	"github.com/Zuo-Peng/lms-log-explorer/internal/search"
)

// previewRenderedMsg is sent when an async preview render completes.
type previewRenderedMsg struct {
	sessionID string
	content   string
	err       error
}

// loadPreviewCmd returns a tea.Cmd that renders the session preview async.
func loadPreviewCmd(ix *index.Index, r search.Result, groupName, query string, width int) tea.Cmd {
	return func() tea.Msg {
		s, err := ix.Get(r.Item.SessionID)
		if err != nil {
			return previewRenderedMsg{sessionID: r.Item.SessionID, err: err}
		}
		content := render.RenderSession(s, render.Options{
			Width:     width,
			Color:     true,
			Query:     query,
			GroupName: groupName,
		})
		return previewRenderedMsg{sessionID: r.Item.SessionID, content: content}
	}
}

// newViewport creates the preview viewport. The panel border is drawn by
// View, so the viewport itself stays unstyled.
func newViewport(width, height int) viewport.Model {
	return viewport.New(width, height)
}
