// Package cache persists debit records as a rotating on-disk CSV snapshot.
//
// Exactly one snapshot file is live at a time. The filename embeds the
// creation date (result_debit_YYYY-MM-DD.csv) and the first line carries the
// full creation timestamp as a comment, so the fetch watermark survives a
// rewrite on the same day. Rotation is write-then-delete: the new file is
// fully written and renamed into place before any old file is removed, so a
// crash never leaves the cache empty when it held data before.
package cache

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ymurata/debitwatch/pkg/api"
)

const (
	filePrefix = "result_debit_"
	fileSuffix = ".csv"

	cachedAtPrefix = "# cached_at:"
)

var csvHeader = []string{"year_month", "payee", "amount", "email_id"}

// removeFile deletes stale snapshots; stubbed in tests.
var removeFile = os.Remove

// Store reads and writes the snapshot files under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a store rooted at dir.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// LoadCurrent finds and parses the newest snapshot file. A missing or
// malformed snapshot is a cold start, not an error: it returns (nil, nil)
// and logs a warning for the malformed case. Errors are reserved for the
// directory itself being unreadable.
func (s *Store) LoadCurrent() (*api.Snapshot, error) {
	files, err := s.listSnapshots()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	// Newest first; the date-embedded names sort lexicographically.
	current := files[len(files)-1]
	snap, err := s.parseFile(current)
	if err != nil {
		s.logger.Warn("cache file unreadable, starting cold", "file", current, "error", err)
		return nil, nil
	}

	s.logger.Info("loaded cache snapshot",
		"file", filepath.Base(current),
		"records", len(snap.Records),
		"created_at", snap.CreatedAt.Format(time.RFC3339),
	)
	return snap, nil
}

// Save writes a new snapshot and then deletes every other snapshot file.
// A stale file that cannot be deleted is logged and left behind; the new
// snapshot is already durable at that point and is not rolled back.
// It returns the path of the new file.
func (s *Store) Save(records []api.DebitRecord, createdAt time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	name := filePrefix + createdAt.Format("2006-01-02") + fileSuffix
	path := filepath.Join(s.dir, name)

	if err := s.writeFile(path, records, createdAt); err != nil {
		return "", err
	}

	stale, err := s.listSnapshots()
	if err != nil {
		s.logger.Warn("could not list stale cache files", "error", err)
		return path, nil
	}
	for _, old := range stale {
		if old == path {
			continue
		}
		if err := removeFile(old); err != nil {
			s.logger.Warn("failed to delete stale cache file", "file", old, "error", err)
		} else {
			s.logger.Debug("deleted stale cache file", "file", filepath.Base(old))
		}
	}

	s.logger.Info("saved cache snapshot", "file", name, "records", len(records))
	return path, nil
}

// writeFile writes the snapshot to a temp file in the same directory and
// renames it into place, so readers never observe a half-written snapshot.
func (s *Store) writeFile(path string, records []api.DebitRecord, createdAt time.Time) error {
	tmp, err := os.CreateTemp(s.dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "%s %s\n", cachedAtPrefix, createdAt.Format(time.RFC3339)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache header: %w", err)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range records {
		row := []string{r.YearMonth, r.Payee, strconv.FormatInt(r.Amount, 10), r.EmailID}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing csv: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming cache file into place: %w", err)
	}
	return nil
}

func (s *Store) parseFile(path string) (*api.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	createdAt, ok := s.createdAtFromHeader(content)
	if ok {
		// Strip the comment line before handing the rest to the CSV reader.
		if idx := strings.IndexByte(content, '\n'); idx >= 0 {
			content = content[idx+1:]
		} else {
			content = ""
		}
	} else {
		createdAt, err = createdAtFromName(filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("no recoverable creation time: %w", err)
		}
	}

	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(rows) == 0 || rows[0][0] != csvHeader[0] {
		return nil, fmt.Errorf("missing csv header")
	}

	records := make([]api.DebitRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 3 {
			s.logger.Warn("skipping short cache row", "row", row)
			continue
		}
		amount, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			s.logger.Warn("skipping cache row with bad amount", "amount", row[2])
			continue
		}
		rec := api.DebitRecord{YearMonth: row[0], Payee: row[1], Amount: amount}
		if len(row) > 3 {
			rec.EmailID = row[3]
		}
		records = append(records, rec)
	}

	return &api.Snapshot{CreatedAt: createdAt, Records: records}, nil
}

func (s *Store) createdAtFromHeader(content string) (time.Time, bool) {
	if !strings.HasPrefix(content, cachedAtPrefix) {
		return time.Time{}, false
	}
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	raw := strings.TrimSpace(strings.TrimPrefix(line, cachedAtPrefix))
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	// Older snapshots recorded the bare date.
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func createdAtFromName(name string) (time.Time, error) {
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	return time.Parse("2006-01-02", raw)
}

// listSnapshots returns every snapshot path in the store, oldest first.
func (s *Store) listSnapshots() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		files = append(files, filepath.Join(s.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// FilterValid drops records whose amount is not positive, preserving the
// order of the rest. Zero amounts come from notifications whose amount field
// was absent or unparseable when they were cached.
func FilterValid(records []api.DebitRecord) []api.DebitRecord {
	valid := make([]api.DebitRecord, 0, len(records))
	for _, r := range records {
		if r.Amount > 0 {
			valid = append(valid, r)
		}
	}
	return valid
}
