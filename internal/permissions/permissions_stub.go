//go:build !darwin

package permissions

import "errors"

var (
	ErrMicrophone    = errors.New("microphone permission not granted")
	ErrAccessibility = errors.New("accessibility permission not granted")
)

// EnsurePermissions is a no-op on non-macOS platforms.
func EnsurePermissions() error {
	return nil
}
