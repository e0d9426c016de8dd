package archive

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mixaill76/log_analyzer/internal/timestamp"
)

const (
	CurrentName = "current"
	ArchiveName = "archive"

	// MonthLayout names the archive sub folders.
	MonthLayout = "2006-01"
)

var (
	// ErrLayout is returned when the log directory does not have a usable
	// current/ and archive/ pair.
	ErrLayout = errors.New("archive: invalid directory layout")

	namePattern = regexp.MustCompile(`^(\d+)-(\d+)(\.gz|\.zst)?$`)
)

// File is a log file named <epoch-millis>-<sequence>.
type File struct {
	Path    string
	Name    string
	Millis  int64
	Seq     int64
	Size    int64
	ModTime time.Time
	// Compressed is set for archived files with a .gz or .zst suffix.
	Compressed bool
}

func compareFiles(a, b File) int {
	if c := cmp.Compare(a.Millis, b.Millis); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// ParseName splits a log file name into its millis and sequence parts.
// Compressed suffixes are accepted only when compressed is true.
func ParseName(name string, compressed bool) (millis, seq int64, ok bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil || (m[3] != "" && !compressed) {
		return 0, 0, false
	}
	millis, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return millis, seq, true
}

// Layout is a resolved log directory.
type Layout struct {
	Root    string
	Current string
	Archive string

	loc    *time.Location
	logger *slog.Logger
}

// Resolve locates current/ and archive/ under root, matching both names
// case-insensitively. current/ must exist and be writable; archive/ is
// created when missing.
func Resolve(root string, loc *time.Location, logger *slog.Logger) (*Layout, error) {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLayout, err)
	}

	l := &Layout{Root: root, loc: loc, logger: logger}
	for _, e := range entries {
		switch {
		case l.Current == "" && strings.EqualFold(e.Name(), CurrentName):
			l.Current = filepath.Join(root, e.Name())
		case l.Archive == "" && strings.EqualFold(e.Name(), ArchiveName):
			l.Archive = filepath.Join(root, e.Name())
		}
	}

	if l.Current == "" {
		return nil, fmt.Errorf("%w: %q has no %s folder", ErrLayout, root, CurrentName)
	}
	if err := checkWritableDir(l.Current); err != nil {
		return nil, err
	}

	if l.Archive == "" {
		l.Archive = filepath.Join(root, ArchiveName)
		if err := os.Mkdir(l.Archive, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrLayout, l.Archive, err)
		}
		logger.Info("Created archive folder", "path", l.Archive)
	}
	if err := checkWritableDir(l.Archive); err != nil {
		return nil, err
	}

	return l, nil
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLayout, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q exists but is not a directory", ErrLayout, dir)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: %q is not writable: %v", ErrLayout, dir, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return nil
}

// List returns the log files in dir in (millis, sequence) order. Entries
// that are not readable regular files or do not follow the naming scheme
// are skipped.
func List(dir string, compressed bool) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		millis, seq, ok := ParseName(e.Name(), compressed)
		if !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || !readable(path) {
			continue
		}
		files = append(files, File{
			Path:       path,
			Name:       e.Name(),
			Millis:     millis,
			Seq:        seq,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Compressed: filepath.Ext(e.Name()) != "",
		})
	}
	slices.SortFunc(files, compareFiles)
	return files, nil
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Pending returns the files in current/ that are safe to process: every
// file strictly before the newest one, which may still be written to.
// Names that parse to the same position as the newest (1-01 and 1-1) are
// all held back.
func (l *Layout) Pending() ([]File, error) {
	files, err := List(l.Current, false)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	newest := files[len(files)-1]
	pending := files[:0]
	for _, f := range files {
		if compareFiles(f, newest) < 0 {
			pending = append(pending, f)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return pending, nil
}

// MonthFolder returns the archive folder name for t.
func (l *Layout) MonthFolder(t time.Time) string {
	return t.In(l.loc).Format(MonthLayout)
}

// Store moves f into the archive folder for its modification month and
// returns the new path. Empty files are deleted instead and the returned
// path is empty.
func (l *Layout) Store(f File) (string, error) {
	if f.Size < 1 {
		if err := os.Remove(f.Path); err != nil {
			return "", fmt.Errorf("archive: delete empty %s: %w", f.Name, err)
		}
		l.logger.Debug("Deleted empty log file", "file", f.Name)
		return "", nil
	}

	dir := filepath.Join(l.Archive, l.MonthFolder(f.ModTime))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, f.Name)
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("archive: %s already exists", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("archive: stat %s: %w", dst, err)
	}
	if err := os.Rename(f.Path, dst); err != nil {
		return "", fmt.Errorf("archive: move %s: %w", f.Name, err)
	}
	return dst, nil
}

// Restore moves an archived file back into current/.
func (l *Layout) Restore(archived string) error {
	dst := filepath.Join(l.Current, filepath.Base(archived))
	if err := os.Rename(archived, dst); err != nil {
		return fmt.Errorf("archive: restore %s: %w", filepath.Base(archived), err)
	}
	return nil
}

// MonthFolders returns the existing archive folders for every month from
// from's month to to's month inclusive, oldest first.
func (l *Layout) MonthFolders(from, to time.Time) ([]string, error) {
	entries, err := os.ReadDir(l.Archive)
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", l.Archive, err)
	}
	existing := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			existing[e.Name()] = filepath.Join(l.Archive, e.Name())
		}
	}

	month := timestamp.StartOfMonth(from.In(l.loc))
	last := timestamp.StartOfMonth(to.In(l.loc))

	var dirs []string
	for !month.After(last) {
		if dir, ok := existing[month.Format(MonthLayout)]; ok {
			dirs = append(dirs, dir)
		}
		month = timestamp.AddMonths(month, 1)
	}
	return dirs, nil
}
