package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"spritebatch/internal/services"
)

// LockPath returns the lock file guarding outputRoot.
func LockPath(lockDir, outputRoot string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(outputRoot)))
	return filepath.Join(lockDir, hex.EncodeToString(sum[:8])+".lock")
}

// acquireOutputLock takes a non-blocking exclusive lock on outputRoot so two
// runs never write batch directories into the same tree.
func acquireOutputLock(lockDir, outputRoot string) (*flock.Flock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "lock", "create lock dir", lockDir, err)
	}
	lock := flock.New(LockPath(lockDir, outputRoot))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "lock", "acquire lock", outputRoot, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrRunLocked, "lock", "acquire lock", fmt.Sprintf("%s (lock %s)", outputRoot, lock.Path()), nil)
	}
	return lock, nil
}
