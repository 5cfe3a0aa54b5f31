// Package camera is the edge agent: it captures frames, feeds the
// analysis channel to the central server, answers commands, and
// streams live video on demand.
package camera

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FrameSource produces raw JPEG frames. Next blocks until a frame is
// available and returns io.EOF when the source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// DirectorySource replays the JPEG files of one directory in name
// order, one frame per interval. With Loop set it starts over instead
// of ending.
type DirectorySource struct {
	interval time.Duration
	files    []string
	idx      int

	Loop bool
}

func NewDirectorySource(dir string, interval time.Duration) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", dir)
	}
	return &DirectorySource{interval: interval, files: files}, nil
}

func (s *DirectorySource) Next(ctx context.Context) ([]byte, error) {
	if s.idx >= len(s.files) {
		if !s.Loop {
			return nil, io.EOF
		}
		s.idx = 0
	}

	if s.interval > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	}

	data, err := os.ReadFile(s.files[s.idx])
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", s.files[s.idx], err)
	}
	s.idx++
	return data, nil
}
