// Package snapshot archives raw market snapshots so a computation can be
// replayed or debugged after the fact. Files are zstd-compressed JSON laid
// out as data/{date}/{currency}/{time}_{runID}.json.zst, written to a temp
// path and promoted with an atomic rename.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/deribit"
)

const fileSuffix = ".json.zst"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Store struct {
	baseDir string
	logger  *zap.Logger
}

func NewStore(baseDir string, logger *zap.Logger) *Store {
	return &Store{baseDir: baseDir, logger: logger}
}

// Write archives one snapshot and returns the final path.
func (s *Store) Write(snap *deribit.Snapshot, runID string) (string, error) {
	dir := filepath.Join(s.baseDir, snap.FetchedAt.UTC().Format("2006-01-02"), snap.Currency)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating directories: %w", err)
	}

	name := fmt.Sprintf("%s_%s%s", snap.FetchedAt.UTC().Format("150405"), runID, fileSuffix)
	destPath := filepath.Join(dir, name)
	tmpPath := destPath + ".tmp"

	if err := s.writeCompressed(tmpPath, snap); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}

	s.logger.Debug("snapshot archived", zap.String("path", destPath))
	return destPath, nil
}

func (s *Store) writeCompressed(path string, snap *deribit.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	encodeErr := json.NewEncoder(enc).Encode(snap)
	if err := enc.Close(); err != nil && encodeErr == nil {
		encodeErr = err
	}
	if err := f.Close(); err != nil && encodeErr == nil {
		encodeErr = err
	}

	if encodeErr != nil {
		return fmt.Errorf("writing snapshot: %w", encodeErr)
	}
	return nil
}

// Read loads one archived snapshot.
func (s *Store) Read(path string) (*deribit.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}

	var snap deribit.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// Latest returns the newest archived snapshot path for a currency.
func (s *Store) Latest(currency string) (string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("reading archive directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if entry.IsDir() && datePattern.MatchString(entry.Name()) {
			dates = append(dates, entry.Name())
		}
	}
	// YYYY-MM-DD sorts lexicographically; newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	for _, date := range dates {
		dir := filepath.Join(s.baseDir, date, currency)
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		var names []string
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), fileSuffix) {
				names = append(names, f.Name())
			}
		}
		if len(names) == 0 {
			continue
		}
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
		return filepath.Join(dir, names[0]), nil
	}

	return "", fmt.Errorf("no archived snapshots for %s in %s", currency, s.baseDir)
}
