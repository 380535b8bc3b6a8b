package command

// CommandSessionOption is a functional option used to configure a CommandSession during construction.
type CommandSessionOption func(*commandSession)

// WithLabel sets the label of the native command encoder and its passes.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - CommandSessionOption: a function that sets the label
func WithLabel(label string) CommandSessionOption {
	return func(s *commandSession) {
		s.label = label
	}
}

// WithSurface acquires the swapchain image when the session is created, so surface errors are reported by
// NewCommandSession before anything is recorded.
func WithSurface() CommandSessionOption {
	return func(s *commandSession) {
		s.acquireSurface = true
	}
}
