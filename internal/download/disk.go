package download

// DiskSpacer reports free bytes on the volume holding a path.
// Injectable so tests can simulate a full disk.
type DiskSpacer interface {
	FreeBytes(path string) (uint64, error)
}

// checkDisk enforces the free-space floor before a download starts.
// A statfs error fails open.
func checkDisk(ds DiskSpacer, dir string, minFreeBytes uint64) FailureKind {
	if ds == nil || minFreeBytes == 0 {
		return FailureNone
	}
	free, err := ds.FreeBytes(dir)
	if err != nil {
		return FailureNone
	}
	if free < minFreeBytes {
		return FailureDiskFull
	}
	return FailureNone
}
