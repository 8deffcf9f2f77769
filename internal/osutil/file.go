package osutil

import (
	"fmt"
	"os"
)

// FileExists returns whether or not a file exists on the filesystem. Any error
// returned by os.Stat counts as the file not being there.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// ReadFileLimited reads a small file such as a key or token file, refusing
// anything larger than limit bytes.
func ReadFileLimited(filename string, limit int64) ([]byte, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filename)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, larger than the %d byte limit", filename, info.Size(), limit)
	}
	return os.ReadFile(filename)
}
