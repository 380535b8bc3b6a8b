package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBinary(t *testing.T, src string) Binary {
	t.Helper()
	r, err := Reflect(src)
	require.NoError(t, err)
	return Binary{Reflect: r, SPIRV: []uint32{0x07230203, 7}}
}

func TestCompileCachePutGet(t *testing.T) {
	c := NewCompileCache()
	_, ok := c.Get(triangleWGSL)
	assert.False(t, ok)

	b := testBinary(t, triangleWGSL)
	c.Put(triangleWGSL, b)
	got, ok := c.Get(triangleWGSL)
	require.True(t, ok)
	assert.Equal(t, b, got)

	// a hit never compiles
	got, err := c.GetOrCompile(triangleWGSL)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	hits, misses := c.Stats()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
	assert.Equal(t, 1, c.Len())
}

func TestCompileCacheSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "shaders.bin")
	c := NewCompileCache()
	c.Put(triangleWGSL, testBinary(t, triangleWGSL))
	c.Put(particlesWGSL, testBinary(t, particlesWGSL))
	require.NoError(t, c.Save(path))

	loaded := LoadCompileCache(path)
	assert.Equal(t, 2, loaded.Len())
	got, ok := loaded.Get(particlesWGSL)
	require.True(t, ok)
	assert.Equal(t, testBinary(t, particlesWGSL), got)

	// unchanged caches are not rewritten
	require.NoError(t, os.Remove(path))
	require.NoError(t, loaded.Save(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadCompileCacheIgnoresBadFiles(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, 0, LoadCompileCache(filepath.Join(dir, "missing.bin")).Len())

	corrupt := filepath.Join(dir, "corrupt.bin")
	require.NoError(t, os.WriteFile(corrupt, []byte("oxy-compile-cache-v1\x05\x00\x00\x00short"), 0o644))
	assert.Equal(t, 0, LoadCompileCache(corrupt).Len())

	wrong := filepath.Join(dir, "wrong.bin")
	require.NoError(t, os.WriteFile(wrong, []byte("something else"), 0o644))
	assert.Equal(t, 0, LoadCompileCache(wrong).Len())
}

func TestCompileCacheDropsUndecodableEntry(t *testing.T) {
	c := NewCompileCache().(*compileCache)
	c.Put(triangleWGSL, testBinary(t, triangleWGSL))
	for k := range c.entries {
		c.entries[k] = []byte("garbage")
	}
	_, ok := c.Get(triangleWGSL)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
