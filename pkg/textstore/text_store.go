// Package textstore serves position-addressed windows over a book's decoded
// text. Positions and lengths are counted in characters, never raw bytes, so
// a window can never split a multi-byte character.
package textstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"leafreader/pkg/storage"
)

// ErrOutOfRange reports a window position outside [0, book length].
var ErrOutOfRange = errors.New("position out of range")

const defaultMaxCached = 32

// Store decodes book text from object storage once and caches the rune
// sequence in-process. Reads are lock-free with respect to each other; the
// text itself is immutable after upload.
type Store struct {
	objects storage.ObjectStore
	group   singleflight.Group

	mu        sync.RWMutex
	cache     map[string][]rune
	order     []string // insertion order, oldest first
	maxCached int
}

// New builds a Store reading from the given object store.
func New(objects storage.ObjectStore) *Store {
	return &Store{
		objects:   objects,
		cache:     make(map[string][]rune),
		maxCached: defaultMaxCached,
	}
}

// Window returns up to length complete characters starting at position and
// the continuation cursor. position == text length is the end-of-book
// sentinel: empty content, cursor unchanged. Reading is side-effect free:
// the same (position, length) always yields the same result.
func (s *Store) Window(ctx context.Context, bookID, key string, position, length int64) (string, int64, error) {
	runes, err := s.text(ctx, bookID, key)
	if err != nil {
		return "", 0, err
	}
	total := int64(len(runes))
	if position < 0 || position > total {
		return "", 0, fmt.Errorf("%w: position %d, book length %d", ErrOutOfRange, position, total)
	}
	if position == total || length <= 0 {
		return "", position, nil
	}
	end := position + length
	if end > total {
		end = total
	}
	return string(runes[position:end]), end, nil
}

// Length returns the number of characters in the book's text.
func (s *Store) Length(ctx context.Context, bookID, key string) (int64, error) {
	runes, err := s.text(ctx, bookID, key)
	if err != nil {
		return 0, err
	}
	return int64(len(runes)), nil
}

// Invalidate drops a book's cached text, e.g. after deletion.
func (s *Store) Invalidate(bookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[bookID]; !ok {
		return
	}
	delete(s.cache, bookID)
	for i, id := range s.order {
		if id == bookID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) text(ctx context.Context, bookID, key string) ([]rune, error) {
	s.mu.RLock()
	runes, ok := s.cache[bookID]
	s.mu.RUnlock()
	if ok {
		return runes, nil
	}
	// Concurrent readers of the same cold book share one fetch+decode.
	v, err, _ := s.group.Do(bookID, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.cache[bookID]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
		rc, err := s.objects.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load book text: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read book text: %w", err)
		}
		decoded := []rune(string(data))
		s.store(bookID, decoded)
		return decoded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]rune), nil
}

func (s *Store) store(bookID string, runes []rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[bookID]; ok {
		return
	}
	for len(s.order) >= s.maxCached {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
	s.cache[bookID] = runes
	s.order = append(s.order, bookID)
}
