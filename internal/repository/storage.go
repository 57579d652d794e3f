package repository

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"cutty/internal/logging"
	"cutty/pkg/fileops"

	"golang.org/x/crypto/blake2b"
)

const recordFileName = "config.json"

// StorageRecord describes one cache slot.
type StorageRecord struct {
	Path     string    `json:"-"`
	URL      string    `json:"url"`
	Provider string    `json:"provider"`
	Updated  time.Time `json:"updated"`
}

// Storage manages cache slots below a root directory. A slot lives at
//
//	<root>/<digest[:2]>/<digest[2:]>/<provider>/
//
// where digest is the hex BLAKE2b hash of the URL. Each slot holds a
// config.json record next to the fetched content.
//
// Storage does not lock: concurrent processes sharing a root race, and the
// last writer wins.
type Storage struct {
	root   string
	now    func() time.Time
	logger *logging.AppLogger
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithClock sets the timestamp source. The default is the current UTC time.
func WithClock(now func() time.Time) StorageOption {
	return func(s *Storage) {
		s.now = now
	}
}

// WithStorageLogger sets the logger.
func WithStorageLogger(logger *logging.AppLogger) StorageOption {
	return func(s *Storage) {
		s.logger = logger
	}
}

// NewStorage returns a storage rooted at root. The directory is created lazily.
func NewStorage(root string, opts ...StorageOption) *Storage {
	s := &Storage{
		root: root,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the storage root directory.
func (s *Storage) Root() string {
	return s.root
}

// digest hashes the URL. Windows gets a shorter digest because of its path
// length limit.
func digest(u *url.URL) string {
	data := []byte(u.String())
	if runtime.GOOS == "windows" {
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
	sum := blake2b.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func (s *Storage) slot(u *url.URL, provider string) string {
	d := digest(u)
	return filepath.Join(s.root, d[:2], d[2:], provider)
}

// Get returns the record for (u, provider) and refreshes its timestamp.
// found is false when the slot does not exist.
func (s *Storage) Get(u *url.URL, provider string) (record StorageRecord, found bool, err error) {
	dir := s.slot(u, provider)

	record, err = readRecord(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return StorageRecord{}, false, nil
	}
	if err != nil {
		return StorageRecord{}, false, err
	}

	record.Updated = s.now()
	if err := writeRecord(record); err != nil {
		return StorageRecord{}, false, err
	}
	return record, true, nil
}

// Allocate creates the slot for (u, provider). Allocating an existing slot
// fails with *StorageAllocationError. A slot directory without a record, left
// behind by an interrupted run, is reclaimed.
func (s *Storage) Allocate(u *url.URL, provider string) (StorageRecord, error) {
	dir := s.slot(u, provider)

	if err := fileops.EnsureDirectoryExists(filepath.Dir(dir)); err != nil {
		return StorageRecord{}, err
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return StorageRecord{}, fmt.Errorf("failed to create cache slot: %w", err)
		}
		if err := s.reclaim(dir); err != nil {
			return StorageRecord{}, err
		}
	}

	record := StorageRecord{
		Path:     dir,
		URL:      u.String(),
		Provider: provider,
		Updated:  s.now(),
	}
	if err := writeRecord(record); err != nil {
		os.RemoveAll(dir)
		return StorageRecord{}, err
	}

	if s.logger != nil {
		s.logger.Debug("Allocated cache slot", "url", record.URL, "provider", provider, "path", dir)
	}
	return record, nil
}

// reclaim empties the existing slot dir when it has no record.
func (s *Storage) reclaim(dir string) error {
	_, err := os.Stat(filepath.Join(dir, recordFileName))
	if err == nil {
		return &StorageAllocationError{Path: dir}
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to inspect cache slot: %w", err)
	}

	if s.logger != nil {
		s.logger.Warn("Reclaiming incomplete cache slot", "path", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to reclaim cache slot: %w", err)
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache slot: %w", err)
	}
	return nil
}

// List returns every record below the root, ordered by path.
func (s *Storage) List() ([]StorageRecord, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*", "*", recordFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	sort.Strings(matches)

	records := make([]StorageRecord, 0, len(matches))
	for _, match := range matches {
		record, err := readRecord(filepath.Dir(match))
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("Skipping unreadable cache record", "path", match, "error", err)
			}
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Clean removes every record updated strictly before cutoff and returns the
// removed records. Fan-out directories left empty are pruned.
func (s *Storage) Clean(cutoff time.Time) ([]StorageRecord, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	var removed []StorageRecord
	for _, record := range records {
		if !record.Updated.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(record.Path); err != nil {
			return removed, fmt.Errorf("failed to remove cache slot %s: %w", record.Path, err)
		}
		removed = append(removed, record)

		// Removing a non-empty directory fails, which is what we want here.
		digestDir := filepath.Dir(record.Path)
		if os.Remove(digestDir) == nil {
			os.Remove(filepath.Dir(digestDir))
		}

		if s.logger != nil {
			s.logger.Info("Removed cache slot", "url", record.URL, "provider", record.Provider)
		}
	}
	return removed, nil
}

// Store returns a Store allocating or reusing slots for provider.
func (s *Storage) Store(provider string) Store {
	return func(u *url.URL) (string, error) {
		record, found, err := s.Get(u, provider)
		if err != nil {
			return "", err
		}
		if found {
			return record.Path, nil
		}
		record, err = s.Allocate(u, provider)
		if err != nil {
			return "", err
		}
		return record.Path, nil
	}
}

func readRecord(dir string) (StorageRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, recordFileName))
	if err != nil {
		return StorageRecord{}, err
	}

	var record StorageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return StorageRecord{}, fmt.Errorf("invalid cache record in %s: %w", dir, err)
	}
	record.Path = dir
	return record, nil
}

func writeRecord(record StorageRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}
	if err := fileops.AtomicWriteFile(filepath.Join(record.Path, recordFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	return nil
}
