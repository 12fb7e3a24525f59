// Package cache is a content-addressed store for compiled template
// images. The CLI uses it to skip recompiling templates whose source and
// options have not changed.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/veyor/stencil/internal/config"
)

// Entry describes one cached image.
type Entry struct {
	// Key is the content hash of source + options.
	Key [32]byte `cbor:"-"`

	// Name is the template name the image was compiled from.
	Name string `cbor:"name"`

	// Params are the parameter names the image was compiled with.
	Params []string `cbor:"params"`

	// Escape and Debug record the compile options baked into the image.
	Escape bool   `cbor:"escape"`
	Debug  string `cbor:"debug"`

	// CreatedAt is the unix timestamp of the compile.
	CreatedAt int64 `cbor:"created_at"`
}

// Store indexes compiled images by content hash. The in-memory index is
// safe for concurrent use; the on-disk layout is one <hex>.stc image plus
// one <hex>.manifest (CBOR-encoded Entry) per key.
type Store struct {
	dir string

	mu      sync.RWMutex
	entries map[[32]byte]*Entry
}

// Open creates or reopens a store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	s := &Store{
		dir:     dir,
		entries: make(map[[32]byte]*Entry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads existing manifests into the index. Corrupt entries are
// skipped, not fatal: the worst case is a recompile.
func (s *Store) load() error {
	names, err := filepath.Glob(filepath.Join(s.dir, "*.manifest"))
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			continue
		}
		var e Entry
		if err := cbor.Unmarshal(data, &e); err != nil {
			continue
		}
		base := filepath.Base(name)
		keyHex := base[:len(base)-len(".manifest")]
		raw, err := hex.DecodeString(keyHex)
		if err != nil || len(raw) != 32 {
			continue
		}
		copy(e.Key[:], raw)
		s.entries[e.Key] = &e
	}
	return nil
}

// KeyFor derives the content hash of a source + options pair. Option
// order is canonicalized so equal configurations hash equally.
func KeyFor(source string, params []string, funcs []string, escape bool, debug config.DebugLevel) [32]byte {
	h := sha256.New()
	h.Write([]byte(source))

	// Parameter order is significant (it selects slots), so params are
	// hashed in declaration order. Funcs only need set equality.
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	sortedFuncs := append([]string(nil), funcs...)
	sort.Strings(sortedFuncs)
	for _, f := range sortedFuncs {
		h.Write([]byte{1})
		h.Write([]byte(f))
	}
	var opts [2]byte
	if escape {
		opts[0] = 1
	}
	opts[1] = byte(debug)
	h.Write(opts[:])

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(source)))
	h.Write(lenBuf[:])

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// Lookup returns the cached image bytes for key, or nil.
func (s *Store) Lookup(key [32]byte) ([]byte, *Entry) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(s.imagePath(key))
	if err != nil {
		return nil, nil
	}
	return data, e
}

// Put stores an image under key. Both files are written through a
// temp-file + rename so readers never observe a torn write.
func (s *Store) Put(key [32]byte, image []byte, e *Entry) error {
	e.Key = key
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	if err := s.writeAtomic(s.imagePath(key), image); err != nil {
		return fmt.Errorf("failed to write cached image: %w", err)
	}
	manifest, err := cbor.Marshal(e)
	if err != nil {
		return fmt.Errorf("manifest encoding failed: %w", err)
	}
	if err := s.writeAtomic(s.manifestPath(key), manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Has reports whether key is indexed.
func (s *Store) Has(key [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of indexed entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) imagePath(key [32]byte) string {
	return filepath.Join(s.dir, hex.EncodeToString(key[:])+config.BytecodeFileExt)
}

func (s *Store) manifestPath(key [32]byte) string {
	return filepath.Join(s.dir, hex.EncodeToString(key[:])+".manifest")
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
