// Package archive compresses output folders in the background.
package archive

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

const ErrTypeArchive = "archive"

// Task is a handle on one archival started by Archive.
type Task struct {
	ID          string
	Folder      string
	Destination string

	done chan struct{}
	err  error
}

// Wait blocks until the task is complete and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done returns a channel closed when the task completes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task error. It is only meaningful once Done is closed.
func (t *Task) Err() error {
	return t.err
}

// Archiver runs archival tasks concurrently and reports their outcome on
// Results.
type Archiver struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	results chan *Task
}

// NewArchiver creates an archiver whose result channel buffers up to
// backlog completed tasks. Results not read once the buffer is full are
// dropped; Task handles still carry the outcome.
func NewArchiver(backlog int) *Archiver {
	if backlog < 0 {
		backlog = 0
	}
	return &Archiver{results: make(chan *Task, backlog)}
}

// Results returns the channel on which completed tasks are published. It
// is closed by Close.
func (a *Archiver) Results() <-chan *Task {
	return a.results
}

// Archive starts compressing folder into the zip file dest and returns at
// once.
func (a *Archiver) Archive(folder, dest string) *Task {
	t := &Task{
		ID:          uuid.NewString(),
		Folder:      folder,
		Destination: dest,
		done:        make(chan struct{}),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		t.err = errors.New("archiver is closed").
			WithType(ErrTypeArchive).
			WithTag("folder", folder)
		close(t.done)
		return t
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		t.err = Zip(folder, dest)
		close(t.done)

		select {
		case a.results <- t:
		default:
		}
	}()
	return t
}

// Close waits for every started task and closes the result channel.
func (a *Archiver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.wg.Wait()
	close(a.results)
}

// Zip writes the regular files under folder into the zip file dest, with
// paths relative to folder. The archive is written next to dest and
// renamed once complete.
func Zip(folder, dest string) error {
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.New("creating archive failed").
			WithType(ErrTypeArchive).
			WithTag("dest", dest).
			Wrap(err)
	}

	err = zipFolder(f, folder)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dest)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.New("archiving folder failed").
			WithType(ErrTypeArchive).
			WithTag("folder", folder).
			WithTag("dest", dest).
			Wrap(err)
	}
	return nil
}

func zipFolder(w io.Writer, folder string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}

		dst, err := zw.CreateHeader(&zip.FileHeader{
			Name:   filepath.ToSlash(rel),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
