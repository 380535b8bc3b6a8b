package shader

// LibraryBuilderOption is a functional option used to configure a Library during construction.
type LibraryBuilderOption func(*library)

// WithWorkers sets how many files are pre-processed and reflected in parallel.
//
// Parameters:
//   - n: the worker count, values below 1 are treated as 1
//
// Returns:
//   - LibraryBuilderOption: a function that sets the worker count
func WithWorkers(n int) LibraryBuilderOption {
	return func(l *library) {
		l.workers = max(n, 1)
	}
}

// WithLibraryPreProcessor shares a pre-processor with the library. Include files found in the library
// directory are registered on it.
//
// Parameters:
//   - pp: the pre-processor to register includes on and expand sources with
//
// Returns:
//   - LibraryBuilderOption: a function that sets the pre-processor
func WithLibraryPreProcessor(pp PreProcessor) LibraryBuilderOption {
	return func(l *library) {
		l.pp = pp
	}
}

// WithReloadHandler sets the function called for every shader source that changed on disk and still
// reflects cleanly while the library is watching.
//
// Parameters:
//   - fn: the callback, invoked from the watcher goroutine
//
// Returns:
//   - LibraryBuilderOption: a function that sets the callback
func WithReloadHandler(fn func(entry LibraryEntry)) LibraryBuilderOption {
	return func(l *library) {
		l.onReload = fn
	}
}
