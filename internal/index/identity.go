package index

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// SessionID derives a session id from where the session was found, never
// from its content, so ids survive rebuilds of an unchanged file.
func SessionID(path string, ordinal int) string {
	return fmt.Sprintf("session-%s-%04d", shortHash(path), ordinal+1)
}

// GroupKey identifies the conversation a session belongs to. Sessions
// lacking either message checksum form a group of their own.
func GroupKey(s *parse.Session) string {
	if s.SystemMessageChecksum != "" && s.UserMessageChecksum != "" {
		return s.SystemMessageChecksum + ":" + s.UserMessageChecksum
	}
	return "request:" + s.SessionID
}

func GroupID(key string) string {
	return "session-group-" + shortHash(key)
}

// assignIdentity stamps a freshly parsed session with its id and group.
func assignIdentity(s *parse.Session, path string, ordinal int) {
	s.SourcePath = path
	s.SourceOrdinal = ordinal
	s.SessionID = SessionID(path, ordinal)
	s.SessionGroupKey = GroupKey(s)
	s.SessionGroupID = GroupID(s.SessionGroupKey)
}

// hydrate restores the fields that are derived from the request body rather
// than stored in their own columns.
func hydrate(s *parse.Session) {
	s.Client = parse.ClientUnknown
	if s.Request != nil {
		id := parse.IdentifyRequest(s.Request.Body)
		s.Client = id.Client
		s.SystemMessageChecksum = id.SystemMessageChecksum
		s.UserMessageChecksum = id.UserMessageChecksum
		if s.Model == "" {
			s.Model = id.Model
		}
	}
	s.SessionGroupKey = GroupKey(s)
	s.SessionGroupID = GroupID(s.SessionGroupKey)
}
