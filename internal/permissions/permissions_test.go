//go:build !darwin

package permissions

import "testing"

func TestEnsurePermissionsIsNoOp(t *testing.T) {
	if err := EnsurePermissions(); err != nil {
		t.Errorf("EnsurePermissions() = %v, want nil", err)
	}
}
