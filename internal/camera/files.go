package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
)

// Files replays still images from disk in order, wrapping around at the end.
// It stands in for a webcam on headless machines.
type Files struct {
	Paths []string
}

type filesStream struct {
	paths []string

	mu     sync.Mutex
	next   int
	closed bool
}

func (f Files) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.Paths) == 0 {
		return nil, ErrNoFrames
	}
	for _, p := range f.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("camera: frame source: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("camera: frame source %s is a directory", p)
		}
	}
	paths := make([]string, len(f.Paths))
	copy(paths, f.Paths)
	return &filesStream{paths: paths}, nil
}

func (s *filesStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrReleased
	}
	path := s.paths[s.next%len(s.paths)]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(data)
}

func (s *filesStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
