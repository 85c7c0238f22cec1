// Package filestorage keeps each attempt as a set of files sharing one stem:
// <stem>.mission.txt, <stem>.camera.json and <stem>.summary.json, each
// optionally gzip-compressed with a trailing .gz.
package filestorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"
)

// File suffixes of one attempt.
const (
	MissionSuffix = ".mission.txt"
	CameraSuffix  = ".camera.json"
	SummarySuffix = ".summary.json"
	gzSuffix      = ".gz"
)

// Backend stores attempts in a directory.
type Backend struct {
	cfg    config.FileConfig
	logger *slog.Logger
	mu     sync.RWMutex
}

// New creates a new file backend
func New(cfg config.FileConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Init creates the output directory.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Stem builds the shared file name of an attempt:
// <mission>_<yyyymmdd_hhmmss>_<first 8 chars of the attempt id>.
func Stem(s core.FlightSummary) string {
	return fmt.Sprintf("%s_%s_%s",
		sanitize(s.MissionID),
		s.StartedAt.UTC().Format("20060102_150405"),
		shortID(s.AttemptID))
}

// TrimSuffix turns a path to any file of an attempt into its stem path.
func TrimSuffix(path string) string {
	path = strings.TrimSuffix(path, gzSuffix)
	for _, suffix := range []string{MissionSuffix, CameraSuffix, SummarySuffix} {
		if strings.HasSuffix(path, suffix) {
			return strings.TrimSuffix(path, suffix)
		}
	}
	return path
}

func sanitize(s string) string {
	if s == "" {
		return "mission"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func shortID(id string) string {
	id = sanitize(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SaveAttempt writes the three files of an attempt.
func (b *Backend) SaveAttempt(_ context.Context, a *storage.Attempt) error {
	if a == nil || a.Log == nil {
		return fmt.Errorf("attempt has no mission log")
	}
	track := a.Track
	if track == nil {
		track = camera.NewTrack()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	stem := filepath.Join(b.cfg.OutputDir, Stem(a.Summary))
	err := b.writeFile(stem+MissionSuffix, func(w io.Writer) error {
		_, err := a.Log.WriteTo(w)
		return err
	})
	if err != nil {
		return err
	}
	if err := b.writeFile(stem+CameraSuffix, func(w io.Writer) error {
		return camera.WriteTrack(w, track)
	}); err != nil {
		return err
	}
	// summary last: an attempt is listed only once it is complete
	if err := b.writeFile(stem+SummarySuffix, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a.Summary)
	}); err != nil {
		return err
	}

	b.logger.Debug("Saved attempt", "attemptId", a.Summary.AttemptID, "stem", stem)
	return nil
}

// writeFile writes through a temp file and renames it into place.
func (b *Backend) writeFile(path string, write func(io.Writer) error) error {
	if b.cfg.CompressOutput {
		path += gzSuffix
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(f.Name())
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return fmt.Errorf("failed to create file: %w", err)
	}

	if b.cfg.CompressOutput {
		gzWriter := gzip.NewWriter(f)
		err = write(gzWriter)
		if closeErr := gzWriter.Close(); err == nil {
			err = closeErr
		}
	} else {
		err = write(f)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadAttempt finds an attempt by id.
func (b *Backend) LoadAttempt(_ context.Context, id string) (*storage.Attempt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matches, err := b.summaryFiles("*_" + shortID(id))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		s, err := readSummary(path)
		if err != nil {
			b.logger.Warn("Skipping unreadable summary", "path", path, "error", err)
			continue
		}
		if s.AttemptID == id {
			return LoadStem(TrimSuffix(path), b.logger)
		}
	}
	return nil, fmt.Errorf("attempt %s: %w", id, storage.ErrNotFound)
}

// ListAttempts returns summaries oldest first. An empty missionID lists all.
func (b *Backend) ListAttempts(_ context.Context, missionID string) ([]core.FlightSummary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pattern := "*"
	if missionID != "" {
		pattern = sanitize(missionID) + "_*"
	}
	matches, err := b.summaryFiles(pattern)
	if err != nil {
		return nil, err
	}

	out := make([]core.FlightSummary, 0, len(matches))
	for _, path := range matches {
		s, err := readSummary(path)
		if err != nil {
			b.logger.Warn("Skipping unreadable summary", "path", path, "error", err)
			continue
		}
		// sanitizing can map two mission ids onto one prefix
		if missionID != "" && s.MissionID != missionID {
			continue
		}
		out = append(out, s)
	}

	slices.SortStableFunc(out, func(x, y core.FlightSummary) int {
		if c := x.StartedAt.Compare(y.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(x.AttemptID, y.AttemptID)
	})
	return out, nil
}

// summaryFiles globs summary files for a stem pattern, plain and gzipped.
func (b *Backend) summaryFiles(stemPattern string) ([]string, error) {
	base := filepath.Join(b.cfg.OutputDir, stemPattern+SummarySuffix)
	plain, err := filepath.Glob(base)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	gz, err := filepath.Glob(base + gzSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	seen := make(map[string]bool, len(plain))
	out := make([]string, 0, len(plain)+len(gz))
	for _, path := range append(plain, gz...) {
		if stem := TrimSuffix(path); !seen[stem] {
			seen[stem] = true
			out = append(out, path)
		}
	}
	return out, nil
}

// LoadStem reads the files of one attempt. A missing camera file yields an
// empty track. The mission log comes back frozen.
func LoadStem(stem string, logger *slog.Logger) (*storage.Attempt, error) {
	summaryFile, err := openEither(stem + SummarySuffix)
	if err != nil {
		return nil, err
	}
	var summary core.FlightSummary
	err = json.NewDecoder(summaryFile).Decode(&summary)
	summaryFile.Close()
	if err != nil {
		return nil, fmt.Errorf("error decoding summary: %w", err)
	}

	logFile, err := openEither(stem + MissionSuffix)
	if err != nil {
		return nil, err
	}
	log, err := missionlog.NewParser(logger).Parse(logFile)
	logFile.Close()
	if err != nil {
		return nil, err
	}

	track := camera.NewTrack()
	trackFile, err := openEither(stem + CameraSuffix)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		track, err = camera.ReadTrack(trackFile)
		trackFile.Close()
		if err != nil {
			return nil, err
		}
	}

	return &storage.Attempt{Summary: summary, Log: log, Track: track}, nil
}

// Files returns the existing files of the attempt at stem, plain or
// compressed, in mission, camera, summary order.
func Files(stem string) []string {
	var out []string
	for _, suffix := range []string{MissionSuffix, CameraSuffix, SummarySuffix} {
		for _, path := range []string{stem + suffix, stem + suffix + gzSuffix} {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				out = append(out, path)
				break
			}
		}
	}
	return out
}

func readSummary(path string) (core.FlightSummary, error) {
	var s core.FlightSummary
	rc, err := openEither(TrimSuffix(path) + SummarySuffix)
	if err != nil {
		return s, err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&s); err != nil {
		return s, fmt.Errorf("error decoding summary: %w", err)
	}
	return s, nil
}

// openEither opens path, or path.gz through a gzip reader.
func openEither(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	f, err = os.Open(path + gzSuffix)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path)+gzSuffix, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if closeErr := g.f.Close(); err == nil {
		err = closeErr
	}
	return err
}
