package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// CreateDirSafe creates the directory with its parents. An existing directory is accepted
// only when checkOwner accepts it.
func CreateDirSafe(path string, perms fs.FileMode) error {
	info, err := os.Stat(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return os.MkdirAll(path, perms)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", path)
	default:
		return checkOwner(path, info, perms)
	}
}

// SaveFileSafe writes data to path, replacing an existing file only when checkOwner accepts it.
func SaveFileSafe(path string, data []byte, perms fs.FileMode) error {
	info, err := os.Stat(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case info.IsDir():
		return fmt.Errorf("%s is a directory", path)
	default:
		if err := checkOwner(path, info, perms); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, perms)
}

// checkOwner accepts entries owned by the current user, and entries of the current user's
// group whose mode is exactly perms.
func checkOwner(path string, info fs.FileInfo, perms fs.FileMode) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return fmt.Errorf("failed to get stats of %s", path)
	}

	current, err := user.Current()
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	switch {
	case current.Uid == strconv.FormatUint(uint64(stat.Uid), 10):
		return nil
	case current.Gid != strconv.FormatUint(uint64(stat.Gid), 10):
		return fmt.Errorf("%s is owned by a user of another group", path)
	case info.Mode().Perm() != perms:
		return fmt.Errorf("%s has permissions %s set by another user", path, info.Mode().Perm())
	default:
		return nil
	}
}
