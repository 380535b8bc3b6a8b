package common

// Key codes delivered to window key callbacks. Values match GLFW key codes.
const (
	KeySpace = 32
	KeyR     = 82
	KeyEsc   = 256
	KeyF11   = 300
)
