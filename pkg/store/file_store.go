package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// FileStore persists records as JSON lines in a local file. Each Save appends
// exactly one line and fsyncs before returning.
//
// Several processes may share the file. Writers hold an exclusive lock on
// path+".lock" and re-read the tail under it, so a stale writer gets
// ledger.ErrConcurrentAppend instead of forking the chain.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex

	// tail is the last record as of the file state (size, modTime).
	tail    *ledger.Record
	size    int64
	modTime time.Time
}

// NewFileStore opens (or creates) the file at path and reads its tail.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	fs := &FileStore{path: path, lock: flock.New(path + ".lock")}

	if err := fs.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = fs.lock.Unlock() }()
	if _, err := fs.readTail(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() ([]ledger.Record, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil // Start empty
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var records []ledger.Record
	reader := bufio.NewReader(file)
	line := 0
	for {
		raw, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			line++
			var rec ledger.Record
			if uerr := json.Unmarshal(raw, &rec); uerr != nil {
				return nil, fmt.Errorf("%s line %d: %w", f.path, line, uerr)
			}
			records = append(records, rec)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// readTail returns the last record in the file, rereading it only when the
// file changed since the last read. Caller holds f.mu and the file lock.
func (f *FileStore) readTail() (*ledger.Record, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.tail, f.size, f.modTime = nil, 0, time.Time{}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Size() == f.size && info.ModTime().Equal(f.modTime) {
		return f.tail, nil
	}

	records, err := f.load()
	if err != nil {
		return nil, err
	}
	f.tail = nil
	if n := len(records); n > 0 {
		last := records[n-1]
		f.tail = &last
	}
	f.size, f.modTime = info.Size(), info.ModTime()
	return f.tail, nil
}

// Save appends one JSON line if rec extends the tail currently on disk.
func (f *FileStore) Save(_ context.Context, rec ledger.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	tail, err := f.readTail()
	if err != nil {
		return err
	}
	next, prev := int64(0), ledger.Genesis
	if tail != nil {
		next, prev = tail.Index+1, tail.CurrentHash
	}
	if rec.Index != next || rec.PreviousHash != prev {
		return fmt.Errorf("index %d, next is %d: %w", rec.Index, next, ledger.ErrConcurrentAppend)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("append record %d: %w", rec.Index, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync record %d: %w", rec.Index, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	saved := rec.Clone()
	f.tail = &saved
	if info, err := os.Stat(f.path); err == nil {
		f.size, f.modTime = info.Size(), info.ModTime()
	} else {
		f.size = -1
	}
	return nil
}

// LoadAll reads every line in file order under a shared lock.
func (f *FileStore) LoadAll(_ context.Context) ([]ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()
	return f.load()
}

// Tail returns the last record on disk, including records written by other processes.
func (f *FileStore) Tail(_ context.Context) (ledger.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.RLock(); err != nil {
		return ledger.Record{}, false, fmt.Errorf("lock %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	tail, err := f.readTail()
	if err != nil || tail == nil {
		return ledger.Record{}, false, err
	}
	return tail.Clone(), true, nil
}

// Reset truncates the file.
func (f *FileStore) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	if err := os.WriteFile(f.path, nil, 0o600); err != nil {
		return err
	}
	f.tail, f.size, f.modTime = nil, -1, time.Time{}
	return nil
}

// Close releases the lock file handle.
func (f *FileStore) Close() error {
	return f.lock.Close()
}
