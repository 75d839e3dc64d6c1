package index

import (
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

var ErrSessionNotFound = errors.New("session not found")

// Index is the in-memory view of all indexed sessions. An Index handed out
// by the Service is never modified afterwards and is safe for concurrent
// readers.
type Index struct {
	sessions map[string]*parse.Session
	bySource map[string][]string
	BuiltAt  time.Time
}

func newIndex() *Index {
	return &Index{
		sessions: make(map[string]*parse.Session),
		bySource: make(map[string][]string),
	}
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.sessions)
}

// Get finds a session by session id, falling back to chat id. When several
// sessions share a chat id the most recent one wins.
func (ix *Index) Get(id string) (*parse.Session, error) {
	if ix == nil {
		return nil, ErrSessionNotFound
	}
	if s, ok := ix.sessions[id]; ok {
		return s, nil
	}
	var best *parse.Session
	for _, s := range ix.sessions {
		if s.ChatID == id && (best == nil || s.FirstSeenAt.After(best.FirstSeenAt)) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrSessionNotFound
	}
	return best, nil
}

// Sessions returns all sessions, most recent first.
func (ix *Index) Sessions() []*parse.Session {
	if ix == nil {
		return nil
	}
	out := lo.Values(ix.sessions)
	sortRecentFirst(out)
	return out
}

// add inserts or replaces s. Ids embed a hash of the source path, so an id
// never moves between files.
func (ix *Index) add(s *parse.Session) {
	if _, ok := ix.sessions[s.SessionID]; !ok {
		ix.bySource[s.SourcePath] = append(ix.bySource[s.SourcePath], s.SessionID)
	}
	ix.sessions[s.SessionID] = s
}

// removeSource drops every session of path and returns their ids.
func (ix *Index) removeSource(path string) []string {
	ids := ix.bySource[path]
	for _, id := range ids {
		delete(ix.sessions, id)
	}
	delete(ix.bySource, path)
	return ids
}

func sortRecentFirst(ss []*parse.Session) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].FirstSeenAt.Equal(ss[j].FirstSeenAt) {
			return ss[i].FirstSeenAt.After(ss[j].FirstSeenAt)
		}
		return ss[i].SessionID > ss[j].SessionID
	})
}
