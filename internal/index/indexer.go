package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
	"github.com/Zuo-Peng/lms-log-explorer/internal/scan"
)

type Stats struct {
	Scanned   int
	Reparsed  int
	Unchanged int // metadata changed, content did not
	Skipped   int
	Purged    int
	Orphans   int // orphans that found no session to join
	Errors    int
	Sessions  int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d reparsed=%d unchanged=%d skipped=%d purged=%d orphans=%d errors=%d sessions=%d",
		s.Scanned, s.Reparsed, s.Unchanged, s.Skipped, s.Purged, s.Orphans, s.Errors, s.Sessions)
}

// Progress describes how far a rebuild has come. ProcessedFiles includes
// the fraction of the file currently being parsed.
type Progress struct {
	TotalFiles      int
	ProcessedFiles  float64
	CurrentFile     string
	SessionsIndexed int
}

type Options struct {
	// ReparseAll ignores stored checksums and reparses every file.
	ReparseAll bool
	YieldEvery int
	Progress   func(Progress)
}

type Indexer struct {
	db *DB
}

func NewIndexer(db *DB) *Indexer {
	return &Indexer{db: db}
}

// LoadPersisted builds an Index from stored sessions alone.
func (x *Indexer) LoadPersisted(ctx context.Context) (*Index, int, error) {
	ix := newIndex()
	var orphans []*parse.Session

	err := x.db.ForEachSession(ctx, func(s parse.Session) error {
		hydrate(&s)
		if isOrphan(&s) {
			orphans = append(orphans, &s)
			return nil
		}
		ix.add(&s)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("load sessions: %w", err)
	}

	dropped := 0
	for _, o := range orphans {
		if _, ok := ix.attachOrphan(o); !ok {
			dropped++
			log.Warn().Str("session", o.SessionID).Str("path", o.SourcePath).
				Time("first_seen", o.FirstSeenAt).Msg("orphan session has no preceding request, excluded")
		}
	}
	ix.BuiltAt = time.Now()
	return ix, dropped, nil
}

// Rebuild brings the store up to date with files and returns the assembled
// index. Failures reading or parsing a single file are logged and skipped;
// store failures abort the rebuild.
func (x *Indexer) Rebuild(ctx context.Context, files []scan.FileInfo, opts Options) (*Index, Stats, error) {
	stats := Stats{Scanned: len(files)}

	current := lo.SliceToMap(files, func(f scan.FileInfo) (string, struct{}) {
		return f.Path, struct{}{}
	})
	purged, err := x.db.DeleteMissingFiles(ctx, current)
	if err != nil {
		return nil, stats, fmt.Errorf("purge missing files: %w", err)
	}
	stats.Purged = len(purged)
	for _, p := range purged {
		log.Debug().Str("path", p).Msg("purged missing log file")
	}

	ix, dropped, err := x.LoadPersisted(ctx)
	if err != nil {
		return nil, stats, err
	}
	stats.Orphans = dropped

	stored, err := x.db.ListIndexedFiles(ctx)
	if err != nil {
		return nil, stats, err
	}

	latest, _ := scan.Latest(files)
	report := func(done float64, current string) {
		if opts.Progress != nil {
			opts.Progress(Progress{
				TotalFiles:      len(files),
				ProcessedFiles:  done,
				CurrentFile:     current,
				SessionsIndexed: ix.Len(),
			})
		}
	}
	report(0, "")

	for i, f := range files {
		report(float64(i), f.Path)

		rec, known := stored[f.Path]
		reparse := opts.ReparseAll || f.Path == latest.Path || !known
		var checksum string

		if !reparse {
			if rec.MtimeMs == f.Mtime && rec.SizeBytes == f.Size {
				stats.Skipped++
				continue
			}
			checksum, err = FileChecksum(f.Path)
			if err != nil {
				stats.Errors++
				log.Warn().Err(err).Str("path", f.Path).Msg("checksum failed, skipping file")
				continue
			}
			if checksum == rec.Checksum {
				stats.Unchanged++
				err := x.db.UpsertIndexedFile(ctx, IndexedFile{
					Path: f.Path, Checksum: checksum, MtimeMs: f.Mtime, SizeBytes: f.Size,
				})
				if err != nil {
					return nil, stats, err
				}
				continue
			}
		}

		if checksum == "" {
			checksum, err = FileChecksum(f.Path)
			if err != nil {
				stats.Errors++
				log.Warn().Err(err).Str("path", f.Path).Msg("checksum failed, skipping file")
				continue
			}
		}

		base := float64(i)
		sessions, err := parse.ParseFile(ctx, f.Path, parse.Options{
			YieldEvery: opts.YieldEvery,
			Progress:   func(frac float64) { report(base+frac, f.Path) },
		})
		if err != nil {
			stats.Errors++
			log.Warn().Err(err).Str("path", f.Path).Msg("parse failed, skipping file")
			continue
		}

		for n := range sessions {
			assignIdentity(&sessions[n], f.Path, n)
		}
		err = x.db.ReplaceFileSessions(ctx, IndexedFile{
			Path: f.Path, Checksum: checksum, MtimeMs: f.Mtime, SizeBytes: f.Size,
		}, sessions)
		if err != nil {
			return nil, stats, fmt.Errorf("replace sessions of %s: %w", f.Path, err)
		}

		x.replaceSource(ix, f.Path, sessions, &stats)
		stats.Reparsed++
		log.Debug().Str("path", f.Path).Int("sessions", len(sessions)).Msg("reparsed log file")
	}

	ix.BuiltAt = time.Now()
	stats.Sessions = ix.Len()
	report(float64(len(files)), "")
	return ix, stats, nil
}

// replaceSource swaps the in-memory sessions of one file for a fresh parse.
func (x *Indexer) replaceSource(ix *Index, path string, sessions []parse.Session, stats *Stats) {
	previous := ix.removeSource(path)
	fresh := make([]string, 0, len(sessions))

	for n := range sessions {
		s := &sessions[n]
		if isOrphan(s) {
			if _, ok := ix.attachOrphan(s); !ok {
				stats.Orphans++
			}
			continue
		}
		ix.add(s)
		fresh = append(fresh, s.SessionID)
	}

	if stale, _ := lo.Difference(previous, fresh); len(stale) > 0 {
		log.Debug().Str("path", path).Strs("removed", stale).Msg("sessions no longer present in file")
	}
}

// FileChecksum streams path through SHA-256.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
