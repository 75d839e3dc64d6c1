package scan

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// FileInfo is what the indexer needs to know about one log file.
type FileInfo struct {
	Path  string
	Mtime int64 // unix milliseconds
	Size  int64
}

var (
	reMonthDir = regexp.MustCompile(`^\d{4}-\d{2}$`)
	reLogFile  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}.*\.log$`)
)

// Scanner discovers LM Studio server logs laid out as
// <root>/YYYY-MM/YYYY-MM-DD*.log.
type Scanner struct {
	Root string
}

func New(root string) *Scanner {
	return &Scanner{Root: root}
}

// Discover lists all log files under the root, sorted by path. A missing
// root yields no files.
func (s *Scanner) Discover(ctx context.Context) ([]FileInfo, error) {
	months, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for _, m := range months {
		if !m.IsDir() || !reMonthDir.MatchString(m.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(s.Root, m.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // skip unreadable dirs
		}
		for _, e := range entries {
			if e.IsDir() || !reLogFile.MatchString(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			path, err := filepath.Abs(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			files = append(files, FileInfo{
				Path:  path,
				Mtime: info.ModTime().UnixMilli(),
				Size:  info.Size(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Latest returns the most recently modified file; ties go to the greater
// path so the choice is stable.
func Latest(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}
	best := files[0]
	for _, f := range files[1:] {
		if f.Mtime > best.Mtime || (f.Mtime == best.Mtime && f.Path > best.Path) {
			best = f
		}
	}
	return best, true
}
