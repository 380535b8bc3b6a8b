package shader

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
)

const compileCacheMagic = "oxy-compile-cache-v1"

// compileCache is the implementation of the CompileCache interface.
type compileCache struct {
	mu      *sync.Mutex
	entries map[[sha256.Size]byte][]byte
	hits    uint64
	misses  uint64
	dirty   bool
}

// CompileCache maps WGSL source digests to encoded binary shaders so a source is compiled once across
// runs. The whole cache is written to a single file at teardown and read back at startup.
type CompileCache interface {
	// GetOrCompile returns the binary for the source, compiling and storing it on a miss.
	//
	// Parameters:
	//   - source: the pre-processed WGSL source
	//
	// Returns:
	//   - Binary: the cached or freshly compiled binary
	//   - error: the compile error on a miss
	GetOrCompile(source string) (Binary, error)

	// Get returns the cached binary for the source, if any.
	Get(source string) (Binary, bool)

	// Put stores a binary for the source.
	Put(source string, b Binary)

	// Len returns the number of cached entries.
	Len() int

	// Stats returns the hit and miss counts since creation.
	Stats() (hits, misses uint64)

	// Save writes the whole cache to path, creating parent directories. Nothing is written when the
	// cache has not changed since it was loaded.
	//
	// Parameters:
	//   - path: the cache file
	//
	// Returns:
	//   - error: if the file cannot be written
	Save(path string) error
}

var _ CompileCache = &compileCache{}

// NewCompileCache creates an empty CompileCache.
func NewCompileCache() CompileCache {
	return &compileCache{
		mu:      &sync.Mutex{},
		entries: make(map[[sha256.Size]byte][]byte),
	}
}

// LoadCompileCache reads a cache file written by Save. A missing file yields an empty cache; a corrupt or
// outdated file is ignored with a warning and also yields an empty cache.
//
// Parameters:
//   - path: the cache file
//
// Returns:
//   - CompileCache: the loaded cache
func LoadCompileCache(path string) CompileCache {
	c := NewCompileCache().(*compileCache)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			common.LogWarn("ignoring unreadable compile cache %s: %v", path, err)
		}
		return c
	}
	if err := c.decode(data); err != nil {
		common.LogWarn("ignoring corrupt compile cache %s: %v", path, err)
		c.entries = make(map[[sha256.Size]byte][]byte)
		return c
	}
	common.LogInfo("loaded compile cache %s with %d entries", path, len(c.entries))
	return c
}

func (c *compileCache) GetOrCompile(source string) (Binary, error) {
	if b, ok := c.Get(source); ok {
		return b, nil
	}
	b, err := CompileBinary(source)
	if err != nil {
		return Binary{}, err
	}
	c.Put(source, b)
	return b, nil
}

func (c *compileCache) Get(source string) (Binary, bool) {
	key := sha256.Sum256([]byte(source))
	c.mu.Lock()
	blob, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return Binary{}, false
	}
	c.mu.Unlock()

	b, err := DecodeBinary(blob)
	if err != nil {
		common.LogWarn("dropping undecodable compile cache entry: %v", err)
		c.mu.Lock()
		delete(c.entries, key)
		c.misses++
		c.dirty = true
		c.mu.Unlock()
		return Binary{}, false
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return b, true
}

func (c *compileCache) Put(source string, b Binary) {
	key := sha256.Sum256([]byte(source))
	blob := EncodeBinary(b)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = blob
	c.dirty = true
}

func (c *compileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *compileCache) Stats() (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *compileCache) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create compile cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create compile cache file: %w", err)
	}
	w := bufio.NewWriter(f)
	c.encode(w)
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write compile cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close compile cache: %w", err)
	}
	c.dirty = false
	common.LogInfo("saved compile cache %s with %d entries", path, len(c.entries))
	return nil
}

// encode writes magic | count | (digest | blob length | blob)...
func (c *compileCache) encode(w io.Writer) {
	_, _ = io.WriteString(w, compileCacheMagic)
	_ = binary.Write(w, binary.LittleEndian, uint32(len(c.entries)))
	for key, blob := range c.entries {
		_, _ = w.Write(key[:])
		_ = binary.Write(w, binary.LittleEndian, uint32(len(blob)))
		_, _ = w.Write(blob)
	}
}

func (c *compileCache) decode(data []byte) error {
	if !bytes.HasPrefix(data, []byte(compileCacheMagic)) {
		return errors.New("bad magic")
	}
	r := bytes.NewReader(data[len(compileCacheMagic):])
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var key [sha256.Size]byte
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return err
		}
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return err
		}
		if int64(n) > int64(r.Len()) {
			return io.ErrUnexpectedEOF
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return err
		}
		c.entries[key] = blob
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.Len())
	}
	return nil
}
