package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirChecker reports whether the directory holding a watched file exists.
// The file itself may be absent; the directory must be there to be watched.
type DirChecker struct {
	path string
}

// NewDirChecker creates a checker for the parent directory of path.
func NewDirChecker(path string) *DirChecker {
	return &DirChecker{path: path}
}

// HealthCheck stats the directory.
func (d *DirChecker) HealthCheck(_ context.Context) error {
	dir := filepath.Dir(d.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("events directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("events directory %s is not a directory", dir)
	}
	return nil
}
