package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoFrame means no frame is available on this tick
var ErrNoFrame = errors.New("no frame available")

// FrameSource yields camera frames. io.EOF ends the render loop.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// SliceSource yields a fixed list of frames once
type SliceSource struct {
	mu     sync.Mutex
	frames []image.Image
}

func NewSliceSource(frames ...image.Image) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) NextFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// SpoolDirSource consumes snapshots a camera process drops into a directory, oldest first.
// Each file is removed once read, whether it decodes or not.
type SpoolDirSource struct {
	dir string
}

func NewSpoolDirSource(dir string) (*SpoolDirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool directory: %s is not a directory", dir)
	}
	return &SpoolDirSource{dir: dir}, nil
}

func (s *SpoolDirSource) NextFrame(ctx context.Context) (image.Image, error) {
	path, err := s.oldest()
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (s *SpoolDirSource) oldest() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("read spool directory: %w", err)
	}

	type candidate struct {
		path string
		mod  int64
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{filepath.Join(s.dir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(files) == 0 {
		return "", ErrNoFrame
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mod == files[j].mod {
			return files[i].path < files[j].path
		}
		return files[i].mod < files[j].mod
	})
	return files[0].path, nil
}
