package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// CacheDirs locates the two on-disk caches the sidecar maintains: the
// credential store holding the paired identity and the browser profile. A
// credential-wiping recovery removes both so the next initialization forces
// a fresh QR pairing.
type CacheDirs struct {
	AuthDir    string
	ProfileDir string
}

func NewCacheDirs(baseDir string) CacheDirs {
	return CacheDirs{
		AuthDir:    filepath.Join(baseDir, "auth-cache"),
		ProfileDir: filepath.Join(baseDir, "browser-profile"),
	}
}

// Wipe removes both cache directories recursively. Both deletions are always
// attempted; a directory that does not exist is not an error.
func (c CacheDirs) Wipe() error {
	var firstErr error
	for _, dir := range []string{c.AuthDir, c.ProfileDir} {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("wipe %s: %w", dir, err)
		}
	}
	return firstErr
}
