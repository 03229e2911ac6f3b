// Package fssource implements source.Source over a local filesystem
// directory, grounded on original_source/querent/sources/src/files.rs's
// LocalFolderSource (check_connectivity reads one directory entry,
// poll_data walks the tree in chunks, random-access reads use seek+read).
package fssource

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/internal/source"
)

// DefaultChunkSize matches the Rust source's default poll_data chunk size.
const DefaultChunkSize = 64000

// Source polls files under a root directory.
type Source struct {
	Root      string
	ChunkSize int
	SourceID  string
}

// New returns a Source rooted at root, defaulting ChunkSize to DefaultChunkSize.
func New(root, sourceID string) *Source {
	return &Source{Root: root, ChunkSize: DefaultChunkSize, SourceID: sourceID}
}

func (s *Source) fullPath(path string) string {
	if path == "" {
		return s.Root
	}
	return filepath.Join(s.Root, path)
}

func (s *Source) chunkSize() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

// CheckConnectivity confirms the root directory exists and has at least one entry.
func (s *Source) CheckConnectivity(ctx context.Context) error {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return source.Wrap(source.ErrNotFound, err)
		}
		return source.Wrap(source.ErrIO, err)
	}
	if len(entries) == 0 {
		return source.Wrap(source.ErrNotFound, os.ErrNotExist)
	}
	return nil
}

// PollData walks the root directory (non-recursive) and streams each
// regular file's content in ChunkSize-sized CollectedBytes, in directory
// order, marking the final chunk of each file EOF=true. The returned
// channels are closed once every file has been delivered or the first
// error is reported.
func (s *Source) PollData(ctx context.Context) (<-chan corepb.CollectedBytes, <-chan error) {
	out := make(chan corepb.CollectedBytes, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		entries, err := os.ReadDir(s.Root)
		if err != nil {
			errs <- source.Wrap(source.ErrPolling, err)
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				errs <- source.Wrap(source.ErrPolling, ctx.Err())
				return
			}
			if entry.IsDir() {
				continue
			}

			if err := s.streamFile(ctx, entry.Name(), out); err != nil {
				errs <- err
				return
			}
		}
	}()

	return out, errs
}

func (s *Source) streamFile(ctx context.Context, name string, out chan<- corepb.CollectedBytes) error {
	full := s.fullPath(name)
	f, err := os.Open(full)
	if err != nil {
		return source.Wrap(source.ErrIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return source.Wrap(source.ErrIO, err)
	}
	var offset int64

	ext := extensionOf(name)
	buf := make([]byte, s.chunkSize())
	for {
		n, err := f.Read(buf)
		if n > 0 {
			offset += int64(n)
			chunk := corepb.CollectedBytes{
				Data:      append([]byte(nil), buf[:n]...),
				File:      name,
				DocSource: s.Root,
				Extension: ext,
				SourceID:  s.SourceID,
				EOF:       err == io.EOF || offset >= info.Size(),
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return source.Wrap(source.ErrPolling, ctx.Err())
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return source.Wrap(source.ErrIO, err)
		}
	}
}

func extensionOf(name string) string {
	ext := filepath.Ext(name)
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return ext
}

func (s *Source) GetSlice(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	f, err := os.Open(s.fullPath(path))
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, source.Wrap(source.ErrIO, err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, source.Wrap(source.ErrIO, err)
	}
	return buf, nil
}

func (s *Source) GetSliceStream(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(path))
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, source.Wrap(source.ErrIO, err)
	}
	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func (s *Source) GetAll(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(path))
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	return data, nil
}

func (s *Source) FileNumBytes(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(s.fullPath(path))
	if err != nil {
		return 0, wrapOpenErr(err)
	}
	return info.Size(), nil
}

func (s *Source) CopyTo(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(s.fullPath(path))
	if err != nil {
		return wrapOpenErr(err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return source.Wrap(source.ErrIO, err)
	}
	return nil
}

func wrapOpenErr(err error) error {
	if os.IsNotExist(err) {
		return source.Wrap(source.ErrNotFound, err)
	}
	return source.Wrap(source.ErrIO, err)
}

var _ source.Source = (*Source)(nil)
