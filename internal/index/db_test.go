package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

type StoreSuite struct {
	suite.Suite
	db *DB
}

func (s *StoreSuite) SetupTest() {
	s.db = openTestDB(s.T())
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) sampleSessions(path string, starts ...time.Time) []parse.Session {
	out := make([]parse.Session, 0, len(starts))
	for i, at := range starts {
		sess := parse.Session{
			FirstSeenAt: at,
			ChatID:      "chatcmpl-x",
			Model:       "qwen",
			Request:     &parse.RequestData{Method: "POST", Endpoint: "/v1/chat/completions", Body: []byte(`{"model":"qwen"}`)},
		}
		sess.Events = []parse.TimelineEvent{
			{ID: parse.EventID(parse.TimelineRequest, at, 1), Type: parse.TimelineRequest, TS: at, Request: sess.Request},
			{ID: parse.EventID(parse.TimelineStreamFinished, at.Add(time.Second), 2), Type: parse.TimelineStreamFinished, TS: at.Add(time.Second)},
		}
		assignIdentity(&sess, path, i)
		out = append(out, sess)
	}
	return out
}

func (s *StoreSuite) TestSchemaVersion() {
	ver, err := s.db.SchemaVersion(bg)
	s.Require().NoError(err)
	s.Equal(schemaVersion, ver)
}

func (s *StoreSuite) TestReplaceFileSessions() {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	file := IndexedFile{Path: "/logs/a.log", Checksum: "c1", MtimeMs: 10, SizeBytes: 100}

	s.Require().NoError(s.db.ReplaceFileSessions(bg, file, s.sampleSessions(file.Path, t0, t0.Add(time.Minute))))

	loaded, err := s.db.LoadSessions(bg)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	s.Equal(SessionID(file.Path, 0), loaded[0].SessionID)
	s.Equal("chatcmpl-x", loaded[0].ChatID)
	s.True(loaded[0].FirstSeenAt.Equal(t0))
	s.Require().NotNil(loaded[0].Request)
	s.JSONEq(`{"model":"qwen"}`, string(loaded[0].Request.Body))
	s.Len(loaded[0].Events, 2)
	s.Equal(file.Path, loaded[0].SourcePath)

	// replacing with fewer sessions removes the old rows
	file.Checksum = "c2"
	s.Require().NoError(s.db.ReplaceFileSessions(bg, file, s.sampleSessions(file.Path, t0)))

	s.Equal([]string{SessionID(file.Path, 0)}, storedSessionIDs(s.T(), s.db, file.Path))

	files, err := s.db.ListIndexedFiles(bg)
	s.Require().NoError(err)
	s.Equal("c2", files[file.Path].Checksum)
	s.Equal(int64(100), files[file.Path].SizeBytes)
}

func (s *StoreSuite) TestForEachSessionOrder() {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.db.ReplaceFileSessions(bg, IndexedFile{Path: "/logs/b.log"},
		s.sampleSessions("/logs/b.log", t0.Add(2*time.Hour), t0.Add(500*time.Millisecond))))
	s.Require().NoError(s.db.ReplaceFileSessions(bg, IndexedFile{Path: "/logs/a.log"},
		s.sampleSessions("/logs/a.log", t0.Add(time.Hour))))

	var seen []time.Time
	s.Require().NoError(s.db.ForEachSession(bg, func(sess parse.Session) error {
		seen = append(seen, sess.FirstSeenAt)
		return nil
	}))
	s.Require().Len(seen, 3)
	for i := 1; i < len(seen); i++ {
		s.False(seen[i].Before(seen[i-1]))
	}
}

func (s *StoreSuite) TestDeleteMissingFiles() {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.db.ReplaceFileSessions(bg, IndexedFile{Path: "/logs/a.log"}, s.sampleSessions("/logs/a.log", t0)))
	s.Require().NoError(s.db.ReplaceFileSessions(bg, IndexedFile{Path: "/logs/b.log"}, s.sampleSessions("/logs/b.log", t0)))

	removed, err := s.db.DeleteMissingFiles(bg, map[string]struct{}{"/logs/a.log": {}})
	s.Require().NoError(err)
	s.Equal([]string{"/logs/b.log"}, removed)

	n, err := s.db.SessionCount(bg)
	s.Require().NoError(err)
	s.Equal(1, n)
	n, err = s.db.FileCount(bg)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreSuite) TestGroupNames() {
	s.Require().NoError(s.db.UpsertGroupName(bg, "session-group-1", "  refactor parser  "))

	name, err := s.db.GetGroupName(bg, "session-group-1")
	s.Require().NoError(err)
	s.Equal("refactor parser", name)

	names, err := s.db.ListGroupNames(bg)
	s.Require().NoError(err)
	s.Equal(map[string]string{"session-group-1": "refactor parser"}, names)

	s.Require().NoError(s.db.UpsertGroupName(bg, "session-group-1", "   "))
	name, err = s.db.GetGroupName(bg, "session-group-1")
	s.Require().NoError(err)
	s.Empty(name)

	s.Error(s.db.UpsertGroupName(bg, "", "x"))
}

func (s *StoreSuite) TestSettings() {
	got, err := s.db.LoadSettings(bg)
	s.Require().NoError(err)
	s.Equal(DefaultSettings(), got)

	saved, err := s.db.SaveSettings(bg, Settings{
		EnableSessionRenamer: true,
		Provider:             ProviderAnthropic,
		Model:                "not-a-model",
		APITokenByProvider:   map[Provider]string{ProviderOpenAI: "sk-1", ProviderGoogle: "  ", "bogus": "x"},
	})
	s.Require().NoError(err)
	s.Equal("claude-sonnet-4-5", saved.Model)
	s.Equal(map[Provider]string{ProviderOpenAI: "sk-1"}, saved.APITokenByProvider)

	got, err = s.db.LoadSettings(bg)
	s.Require().NoError(err)
	s.Equal(saved, got)
}
