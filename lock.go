package ethdma

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	BPFFS_ENVVAR       = "ETHDMA_BPFFS"
	BPFFS_MOUNT_ENVVAR = "ETHDMA_BPFFS_AUTOMOUNT"
	LOCKDIR_ENVVAR     = "ETHDMA_LOCKDIR"
	BPF_DIR_MNT        = "/sys/fs/bpf"
	RUNDIR             = "/run"
	STATE_SUBDIR       = "ethdma"
)

// ErrDeviceBusy indicates another process holds the device lock.
var ErrDeviceBusy = errors.New("device is locked by another process")

var (
	bpfMntCached bool
	bpfWrkDir    string
)

// mkStateSubdir creates the "ethdma" directory below parent.
func mkStateSubdir(parent string) (string, error) {
	dir := filepath.Join(parent, STATE_SUBDIR)
	err := os.Mkdir(dir, unix.S_IRWXU)
	if err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// findBpffs locates the BPF filesystem mount point.
// The result is cached. ETHDMA_BPFFS overrides the default location and
// ETHDMA_BPFFS_AUTOMOUNT=1 mounts a new bpffs there when none is found.
func findBpffs() (string, error) {
	if bpfMntCached {
		return bpfWrkDir, nil
	}

	envVal, has := os.LookupEnv(BPFFS_MOUNT_ENVVAR)
	mount := has && envVal == "1"
	envDir, has := os.LookupEnv(BPFFS_ENVVAR)
	if !has {
		envDir = BPF_DIR_MNT
	}

	mnt, err := bpfFindMntptSingle(envDir, mount)
	if err != nil {
		return "", err
	}
	bpfMntCached = true
	bpfWrkDir = mnt
	return bpfWrkDir, nil
}

func bpfIsValidMntpt(mnt string) bool {
	var statfs unix.Statfs_t
	if err := unix.Statfs(mnt, &statfs); err != nil {
		return false
	}
	return statfs.Type == unix.BPF_FS_MAGIC
}

func bpfFindMntptSingle(dir string, mount bool) (string, error) {
	if !bpfIsValidMntpt(dir) {
		if !mount {
			return "", fmt.Errorf("no bpffs found at %s", dir)
		}
		if err := bpfMntFs(dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// bpfMntFs mounts a bpffs at target, making target a private mount point first.
func bpfMntFs(target string) error {
	bindDone := false

retry:
	err := unix.Mount("", target, "none", unix.MS_PRIVATE|unix.MS_REC, "")
	if err != nil {
		if err != unix.EINVAL || bindDone {
			return fmt.Errorf("mount --make-private %s failed: %w", target, err)
		}

		err = unix.Mount(target, target, "none", unix.MS_BIND, "")
		if err != nil {
			return fmt.Errorf("mount --bind %s %s failed: %w", target, target, err)
		}

		bindDone = true
		goto retry
	}

	err = unix.Mount("bpf", target, "bpf", 0, "mode=0700")
	if err != nil {
		return fmt.Errorf("mount -t bpf bpf %s failed: %w", target, err)
	}
	return nil
}

// getBpffsDir returns the ethdma state directory on bpffs.
func getBpffsDir() (string, error) {
	parent, err := findBpffs()
	if err != nil {
		return "", err
	}
	return mkStateSubdir(parent)
}

// getLockDir returns the directory holding device lock files.
// ETHDMA_LOCKDIR takes precedence, then /run/ethdma.
func getLockDir() (string, error) {
	if dir, has := os.LookupEnv(LOCKDIR_ENVVAR); has {
		return dir, nil
	}
	return mkStateSubdir(RUNDIR)
}

// lockName turns a device path into a lock file name.
func lockName(devPath string) string {
	name := strings.Trim(filepath.Clean(devPath), "/")
	return strings.ReplaceAll(name, "/", "_") + ".lock"
}

// deviceLockAcquire takes an exclusive, non-blocking lock for devPath.
//
// Returns:
//   - *os.File: the locked file, to be passed to deviceLockRelease.
//   - error: ErrDeviceBusy when another process holds the lock, or an I/O error.
func deviceLockAcquire(devPath string) (*os.File, error) {
	dir, err := getLockDir()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, lockName(devPath))
	lockFile, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("couldn't open lock file %s: %w", path, err)
	}

	err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lockFile.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("%s: %w", devPath, ErrDeviceBusy)
		}
		return nil, fmt.Errorf("couldn't flock %s: %w", path, err)
	}

	logger.Debug("device lock acquired", zap.String("device", devPath), zap.String("lock", path))
	return lockFile, nil
}

// deviceLockRelease unlocks and closes a lock file.
func deviceLockRelease(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}
	err := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	if err != nil {
		return fmt.Errorf("couldn't unlock fd %d: %w", lockFile.Fd(), err)
	}
	return lockFile.Close()
}
