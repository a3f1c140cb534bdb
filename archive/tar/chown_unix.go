//go:build !windows

package tar

import (
	"os"
	"syscall"
)

// chown sets the owner of path, following symbolic links, unless it already matches.
func chown(path string, uid, gid int) error {
	if owned(os.Stat, path, uid, gid) {
		return nil
	}

	return os.Chown(path, uid, gid)
}

// lchown sets the owner of the symbolic link itself.
func lchown(path string, uid, gid int) error {
	if owned(os.Lstat, path, uid, gid) {
		return nil
	}

	return os.Lchown(path, uid, gid)
}

func owned(stat func(string) (os.FileInfo, error), path string, uid, gid int) bool {
	fi, err := stat(path)
	if err != nil {
		return false
	}

	st, ok := fi.Sys().(*syscall.Stat_t)

	return ok && int(st.Uid) == uid && int(st.Gid) == gid
}
