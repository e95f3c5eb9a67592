//go:build !linux && !darwin

package hotkey

// New fails on platforms without a hotkey backend; use stdin commands instead.
func New() (Manager, error) {
	return nil, ErrUnsupported
}
