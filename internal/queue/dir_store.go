package queue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"ytcollector/internal/fileutil"
)

const recordExt = ".json"

// DirStore keeps each queue in its own directory with one <id>.json file per
// item. Records are staged in a temp file and linked into place, so a crash
// never leaves a partial record under a real name.
type DirStore struct {
	dirs map[string]string
}

// NewDirStore creates the queue directories and returns a store over them.
// Two queues may not share a directory.
func NewDirStore(dirs map[string]string) (*DirStore, error) {
	owners := make(map[string]string, len(dirs))
	clean := make(map[string]string, len(dirs))
	for name, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("queue %s: directory is required", name)
		}
		dir = filepath.Clean(dir)
		if other, dup := owners[dir]; dup {
			return nil, fmt.Errorf("queues %s and %s share directory %s", other, name, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", dir, err)
		}
		owners[dir] = name
		clean[name] = dir
	}
	return &DirStore{dirs: clean}, nil
}

func (s *DirStore) recordPath(queue, id string) (string, error) {
	dir, ok := s.dirs[queue]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(dir, id+recordExt), nil
}

func (s *DirStore) Write(_ context.Context, queue string, item Item) error {
	path, err := s.recordPath(queue, item.ID)
	if err != nil {
		return err
	}
	data, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileExclusive(path, data, 0o644); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s/%s: %w", queue, item.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("write %s/%s: %w", queue, item.ID, err)
	}
	return nil
}

func (s *DirStore) Read(_ context.Context, queue, id string) (Item, error) {
	path, err := s.recordPath(queue, id)
	if err != nil {
		return Item{}, err
	}
	return readRecord(path, queue, id)
}

func readRecord(path, queue, id string) (Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Item{}, fmt.Errorf("%s/%s: %w", queue, id, ErrNotFound)
		}
		return Item{}, fmt.Errorf("read %s/%s: %w", queue, id, err)
	}
	return decodeItem(id, data)
}

// List reads the directory once per pass and loads records lazily. Records
// removed after the directory was read are skipped.
func (s *DirStore) List(ctx context.Context, queue string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		dir, ok := s.dirs[queue]
		if !ok {
			yield(Item{}, fmt.Errorf("%w: %s", ErrUnknownQueue, queue))
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			yield(Item{}, fmt.Errorf("list %s: %w", queue, err))
			return
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(Item{}, err)
				return
			}
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") || fileutil.IsTempName(name) {
				continue
			}
			id := strings.TrimSuffix(name, recordExt)
			item, err := readRecord(filepath.Join(dir, name), queue, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func (s *DirStore) Remove(_ context.Context, queue, id string) error {
	path, err := s.recordPath(queue, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s/%s: %w", queue, id, ErrNotFound)
		}
		return fmt.Errorf("remove %s/%s: %w", queue, id, err)
	}
	return nil
}

func (s *DirStore) Exists(_ context.Context, queue, id string) (bool, error) {
	path, err := s.recordPath(queue, id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s/%s: %w", queue, id, err)
	}
	return true, nil
}

func (s *DirStore) Replace(_ context.Context, queue string, item Item) error {
	path, err := s.recordPath(queue, item.ID)
	if err != nil {
		return err
	}
	data, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("replace %s/%s: %w", queue, item.ID, err)
	}
	return nil
}

// Dir returns the directory backing queue.
func (s *DirStore) Dir(queue string) (string, bool) {
	dir, ok := s.dirs[queue]
	return dir, ok
}

func (s *DirStore) Close() error { return nil }
