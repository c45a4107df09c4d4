//go:build unix

package download

import "golang.org/x/sys/unix"

// StatfsSpacer is the production DiskSpacer.
type StatfsSpacer struct{}

func (StatfsSpacer) FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
