// Package osutil contains small filesystem and environment helpers.
package osutil

import "os"

// UserHomeDir is like os.UserHomeDir but prefers $HOME whenever it is set,
// including on Windows where os.UserHomeDir would use %USERPROFILE%.
func UserHomeDir() (string, error) {
	if h := os.Getenv("HOME"); h != "" {
		return h, nil
	}
	return os.UserHomeDir()
}
