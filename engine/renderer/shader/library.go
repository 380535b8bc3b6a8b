package shader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/fsnotify/fsnotify"
)

const (
	sourceExt  = ".wgsl"
	includeExt = ".inc.wgsl"
)

// LibraryEntry is one pre-processed and reflected shader source of a library.
type LibraryEntry struct {
	Name    string
	Path    string
	Source  string
	Reflect ShaderReflect
}

// library is the implementation of the Library interface.
type library struct {
	mu       *sync.RWMutex
	dir      string
	workers  int
	pp       PreProcessor
	pool     worker.DynamicWorkerPool
	entries  map[string]LibraryEntry
	onReload func(entry LibraryEntry)
	watcher  *fsnotify.Watcher
}

// Library loads a directory of WGSL files. Files ending in .inc.wgsl are registered as @oxy:include
// snippets under their stem; every other .wgsl file is a shader source, pre-processed and reflected in
// parallel and cached under its stem.
type Library interface {
	// Load (re)reads every file of the directory.
	//
	// Returns:
	//   - error: every file that failed, joined
	Load() error

	// Entry returns the cached source and reflection of a shader.
	Entry(name string) (LibraryEntry, bool)

	// Names returns the cached shader names, sorted.
	Names() []string

	// PreProcessor returns the pre-processor the includes are registered on.
	PreProcessor() PreProcessor

	// Watch reloads changed files until ctx is done, calling the reload handler for each shader that
	// changed. A changed include reloads every shader.
	//
	// Parameters:
	//   - ctx: stops the watcher when done
	//
	// Returns:
	//   - error: if the watcher cannot be started
	Watch(ctx context.Context) error

	// Close stops the watcher, if any.
	Close() error
}

var _ Library = &library{}

// NewLibrary creates a Library over dir. Nothing is read until Load.
//
// Parameters:
//   - dir: the directory holding .wgsl and .inc.wgsl files
//   - opts: library options
//
// Returns:
//   - Library: the library
func NewLibrary(dir string, opts ...LibraryBuilderOption) Library {
	l := &library{
		mu:      &sync.RWMutex{},
		dir:     dir,
		workers: 4,
		entries: make(map[string]LibraryEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pp == nil {
		l.pp = NewPreProcessor()
	}
	l.pool = worker.NewDynamicWorkerPool(l.workers, 256, 1*time.Second)
	return l
}

func (l *library) Load() error {
	files, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read shader directory %q: %w", l.dir, err)
	}

	var sources []string
	var errs []error
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, f.Name())
		switch {
		case strings.HasSuffix(f.Name(), includeExt):
			if err := l.registerInclude(path); err != nil {
				errs = append(errs, err)
			}
		case strings.HasSuffix(f.Name(), sourceExt):
			sources = append(sources, path)
		}
	}

	loaded, loadErrs := l.loadSources(sources)
	errs = append(errs, loadErrs...)

	l.mu.Lock()
	for _, e := range loaded {
		l.entries[e.Name] = e
	}
	l.mu.Unlock()

	common.LogInfo("loaded %d shaders from %s", len(loaded), l.dir)
	return errors.Join(errs...)
}

// registerInclude reads an include file into the pre-processor.
func (l *library) registerInclude(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read include %q: %w", path, err)
	}
	l.pp.Register(stem(path), string(data))
	return nil
}

// loadSources pre-processes and reflects the files on the worker pool.
func (l *library) loadSources(paths []string) ([]LibraryEntry, []error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		entries []LibraryEntry
		errs    []error
	)
	for i, path := range paths {
		wg.Add(1)
		p := path
		l.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				e, err := l.loadSource(p)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return nil, err
				}
				entries = append(entries, e)
				return e, nil
			},
		})
	}
	wg.Wait()
	return entries, errs
}

func (l *library) loadSource(path string) (LibraryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LibraryEntry{}, fmt.Errorf("failed to read shader %q: %w", path, err)
	}
	src, _, err := l.pp.Process(string(data))
	if err != nil {
		return LibraryEntry{}, fmt.Errorf("%s: %w", path, err)
	}
	r, err := Reflect(src)
	if err != nil {
		return LibraryEntry{}, fmt.Errorf("%s: %w", path, err)
	}
	return LibraryEntry{Name: stem(path), Path: path, Source: src, Reflect: r}, nil
}

func (l *library) Entry(name string) (LibraryEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[name]
	return e, ok
}

func (l *library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.entries))
	for n := range l.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *library) PreProcessor() PreProcessor {
	return l.pp
}

func (l *library) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create shader watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %q: %w", l.dir, err)
	}
	l.mu.Lock()
	l.watcher = w
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.Close()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					l.reload(ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				common.LogWarn("shader watcher: %v", err)
			}
		}
	}()
	return nil
}

// reload re-reads one changed file and notifies the handler.
func (l *library) reload(path string) {
	var paths []string
	switch {
	case strings.HasSuffix(path, includeExt):
		if err := l.registerInclude(path); err != nil {
			common.LogError("shader reload: %v", err)
			return
		}
		l.mu.RLock()
		for _, e := range l.entries {
			paths = append(paths, e.Path)
		}
		l.mu.RUnlock()
	case strings.HasSuffix(path, sourceExt):
		paths = []string{path}
	default:
		return
	}

	entries, errs := l.loadSources(paths)
	for _, err := range errs {
		common.LogError("shader reload kept previous version: %v", err)
	}
	for _, e := range entries {
		l.mu.Lock()
		l.entries[e.Name] = e
		l.mu.Unlock()
		common.LogInfo("reloaded shader %s", e.Name)
		if l.onReload != nil {
			l.onReload(e)
		}
	}
}

func (l *library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

// stem strips the directory and the .inc.wgsl or .wgsl extension.
func stem(path string) string {
	base := filepath.Base(path)
	if s, ok := strings.CutSuffix(base, includeExt); ok {
		return s
	}
	return strings.TrimSuffix(base, sourceExt)
}
