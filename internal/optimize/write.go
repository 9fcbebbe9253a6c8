package optimize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is created in a theme's static dir while it is written.
const LockFileName = ".amdpack.lock"

const lockRetryDelay = 50 * time.Millisecond

// withLock runs fn holding the lock of dir, so two builds of one theme
// cannot interleave their writes.
func withLock(ctx context.Context, dir string, fn func() error) error {
	fileLock := flock.New(filepath.Join(dir, LockFileName))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire lock: %s is locked", dir)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

// writeFile replaces path atomically with data.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	cleaned := false
	defer func() {
		if cleaned {
			return
		}
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	cleaned = true
	return nil
}
