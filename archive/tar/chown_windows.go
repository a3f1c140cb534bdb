//go:build windows

package tar

// On Windows, POSIX ownership is not applicable.
func chown(path string, uid, gid int) error  { return nil }
func lchown(path string, uid, gid int) error { return nil }
