// Package frames persists raw camera frames to disk and hands them to
// the face pipeline. Frames live under one directory per camera
// location ({lat}_{lng}) and are deleted once processed.
package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/argus-vision/argus/internal/wire"
)

// PendingFrame is one on-disk frame awaiting face processing.
type PendingFrame struct {
	Path     string
	Location wire.Location
	SeenAt   time.Time
}

// Store owns the frames directory tree.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the frames directory.
func (s *Store) Root() string {
	return s.root
}

// Write persists one frame as {uuid}-{timestamp}.jpg under the
// location's directory and returns the file path.
func (s *Store) Write(loc wire.Location, data []byte, timestamp string) (string, error) {
	dir := filepath.Join(s.root, loc.DirName())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create frame dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.jpg", uuid.NewString(), timestamp))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}
	return path, nil
}

// Scan lists every pending frame, oldest first.
// Entries whose directory or file name does not parse are skipped;
// the database file and other non-frame files share the data root.
func (s *Store) Scan() ([]PendingFrame, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read frames root: %w", err)
	}

	var pending []PendingFrame
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		loc, err := wire.ParseDirName(entry.Name())
		if err != nil {
			continue
		}

		dir := filepath.Join(s.root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read frame dir %s: %w", dir, err)
		}

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			seenAt, err := parseFrameTime(f.Name())
			if err != nil {
				continue
			}
			pending = append(pending, PendingFrame{
				Path:     filepath.Join(dir, f.Name()),
				Location: loc,
				SeenAt:   seenAt,
			})
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].SeenAt.Equal(pending[j].SeenAt) {
			return pending[i].SeenAt.Before(pending[j].SeenAt)
		}
		return pending[i].Path < pending[j].Path
	})
	return pending, nil
}

// Remove deletes a processed frame file.
func (s *Store) Remove(path string) error {
	return os.Remove(path)
}

// parseFrameTime extracts the capture timestamp from a
// {uuid}-{YYYYMMDD_HHMMSS}.jpg filename. The timestamp is everything
// after the last dash.
func parseFrameTime(name string) (time.Time, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "-")
	if idx < 0 || idx == len(base)-1 {
		return time.Time{}, fmt.Errorf("no timestamp in frame name %q", name)
	}
	return time.Parse(wire.FrameTimeLayout, base[idx+1:])
}
