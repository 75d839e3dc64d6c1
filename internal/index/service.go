package index

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Zuo-Peng/lms-log-explorer/internal/scan"
)

type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Status is a snapshot of the coordinator's rebuild state.
type Status struct {
	State           State     `json:"state"`
	RunID           string    `json:"runId,omitempty"`
	TotalFiles      int       `json:"totalFiles"`
	ProcessedFiles  float64   `json:"processedFiles"`
	SessionsIndexed int       `json:"sessionsIndexed"`
	CurrentFile     string    `json:"currentFile,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
	Error           string    `json:"error,omitempty"`
	Stats           *Stats    `json:"stats,omitempty"`
}

// Discoverer lists the log files to index.
type Discoverer interface {
	Discover(ctx context.Context) ([]scan.FileInfo, error)
}

// Service owns the served index and serializes rebuilds. Concurrent Rebuild
// calls share one in-flight run.
type Service struct {
	db        *DB
	indexer   *Indexer
	discover  Discoverer
	yieldEach int

	flight singleflight.Group

	mu        sync.RWMutex
	index     *Index
	status    Status
	listeners []func(Status)
}

type ServiceOption func(*Service)

// WithYieldEvery sets the parser batch size between scheduler yields.
func WithYieldEvery(n int) ServiceOption {
	return func(s *Service) { s.yieldEach = n }
}

func NewService(db *DB, discover Discoverer, opts ...ServiceOption) *Service {
	s := &Service{
		db:       db,
		indexer:  NewIndexer(db),
		discover: discover,
		status:   Status{State: StateIdle},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) DB() *DB {
	return s.db
}

// OnProgress registers fn to receive every status change. fn runs on the
// rebuild goroutine and must not block.
func (s *Service) OnProgress(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Index returns the served index, loading it from the store on first use
// without parsing any log file.
func (s *Service) Index(ctx context.Context) (*Index, error) {
	s.mu.RLock()
	ix := s.index
	s.mu.RUnlock()
	if ix != nil {
		return ix, nil
	}

	v, err, _ := s.flight.Do("load", func() (any, error) {
		s.mu.RLock()
		cached := s.index
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		loaded, _, err := s.indexer.LoadPersisted(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.index == nil {
			s.index = loaded
		} else {
			loaded = s.index
		}
		s.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

type rebuildResult struct {
	index *Index
	stats Stats
}

// Rebuild runs an incremental rebuild, or joins the one already running, in
// which case the running call's options apply. The rebuild itself is not
// cancelled with ctx; ctx only bounds how long the caller waits.
func (s *Service) Rebuild(ctx context.Context, opts Options) (*Index, Stats, error) {
	ch := s.flight.DoChan("rebuild", func() (any, error) {
		return s.rebuild(context.WithoutCancel(ctx), opts)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var stats Stats
			if r, ok := res.Val.(rebuildResult); ok {
				stats = r.stats
			}
			return nil, stats, res.Err
		}
		r := res.Val.(rebuildResult)
		return r.index, r.stats, nil
	case <-ctx.Done():
		return nil, Stats{}, ctx.Err()
	}
}

func (s *Service) rebuild(ctx context.Context, opts Options) (rebuildResult, error) {
	runID := uuid.NewString()
	logger := log.With().Str("run", runID).Logger()
	started := time.Now()

	s.setStatus(Status{State: StateIndexing, RunID: runID, StartedAt: started})

	files, err := s.discover.Discover(ctx)
	if err != nil {
		s.fail(runID, started, Stats{}, err)
		return rebuildResult{}, err
	}

	userProgress := opts.Progress
	opts.Progress = func(p Progress) {
		s.mu.Lock()
		st := s.status
		st.TotalFiles = p.TotalFiles
		if p.ProcessedFiles > st.ProcessedFiles {
			st.ProcessedFiles = p.ProcessedFiles
		}
		st.CurrentFile = p.CurrentFile
		st.SessionsIndexed = p.SessionsIndexed
		s.status = st
		listeners := s.listeners
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(st)
		}
		if userProgress != nil {
			userProgress(p)
		}
	}
	if opts.YieldEvery == 0 {
		opts.YieldEvery = s.yieldEach
	}

	logger.Info().Int("files", len(files)).Bool("reparse_all", opts.ReparseAll).Msg("rebuild started")
	ix, stats, err := s.indexer.Rebuild(ctx, files, opts)
	if err != nil {
		s.fail(runID, started, stats, err)
		logger.Error().Err(err).Msg("rebuild failed, keeping previous index")
		return rebuildResult{stats: stats}, err
	}

	s.mu.Lock()
	s.index = ix
	s.mu.Unlock()

	s.setStatus(Status{
		State:           StateReady,
		RunID:           runID,
		TotalFiles:      len(files),
		ProcessedFiles:  float64(len(files)),
		SessionsIndexed: ix.Len(),
		StartedAt:       started,
		FinishedAt:      time.Now(),
		Stats:           &stats,
	})
	logger.Info().Str("stats", stats.String()).Dur("took", time.Since(started)).Msg("rebuild finished")
	return rebuildResult{index: ix, stats: stats}, nil
}

func (s *Service) fail(runID string, started time.Time, stats Stats, err error) {
	st := s.Status()
	st.State = StateError
	st.RunID = runID
	st.StartedAt = started
	st.FinishedAt = time.Now()
	st.Error = err.Error()
	st.Stats = &stats
	s.setStatus(st)
}

func (s *Service) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	listeners := s.listeners
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}

// GroupNames returns user-assigned group display names.
func (s *Service) GroupNames(ctx context.Context) (map[string]string, error) {
	return s.db.ListGroupNames(ctx)
}

// List returns the list projection of the served index.
func (s *Service) List(ctx context.Context) ([]ListItem, error) {
	ix, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.GroupNames(ctx)
	if err != nil {
		return nil, err
	}
	return ix.List(names), nil
}

// Groups returns per-conversation summaries of the served index.
func (s *Service) Groups(ctx context.Context) (map[string]GroupSummary, error) {
	ix, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.GroupNames(ctx)
	if err != nil {
		return nil, err
	}
	return ix.Groups(names), nil
}

// RenameGroup sets or, with an empty name, clears a group's display name.
func (s *Service) RenameGroup(ctx context.Context, groupID, name string) error {
	return s.db.UpsertGroupName(ctx, groupID, name)
}
