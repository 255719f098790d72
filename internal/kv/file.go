package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// FileStore keeps all keys in one JSON document. Writes go to a temp file
// that is renamed over the original, under an flock shared with other
// processes using the same path.
type FileStore struct {
	path     string
	lockPath string

	mu sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("kv: file path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: abs, lockPath: abs + ".lock"}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err = withFileLock(s.lockPath, func() error {
		doc, err := s.readLocked()
		if err != nil {
			return err
		}
		raw, ok := doc[key]
		if !ok {
			return ErrNotFound
		}
		value = append([]byte(nil), raw...)
		return nil
	})
	return value, err
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("kv: value for %q is not valid JSON", key)
	}
	return s.update(ctx, func(doc map[string]json.RawMessage) {
		doc[key] = append(json.RawMessage(nil), value...)
	})
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.update(ctx, func(doc map[string]json.RawMessage) {
		delete(doc, key)
	})
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) update(ctx context.Context, fn func(map[string]json.RawMessage)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.lockPath, func() error {
		doc, err := s.readLocked()
		if err != nil {
			// A corrupt document is replaced rather than blocking every write.
			doc = make(map[string]json.RawMessage)
		}
		fn(doc)
		return writeAtomicJSON(s.path, doc)
	})
}

func (s *FileStore) readLocked() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, err
	}
	if len(payload) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("kv: decode %s: %w", s.path, err)
	}
	return doc, nil
}

func withFileLock(lockPath string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, doc map[string]json.RawMessage) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
