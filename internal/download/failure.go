package download

// FailureKind is the closed set of download failure classes. Retry
// policy keys off the kind, never off error message text.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureGone      FailureKind = "gone"      // origin says the stream no longer exists
	FailureTransient FailureKind = "transient" // worth retrying
	FailureDiskFull  FailureKind = "disk_full"
	FailureStalled   FailureKind = "stalled"
	FailureRemux     FailureKind = "remux_error"
	FailureCanceled  FailureKind = "canceled"
)

// Retryable reports whether another attempt can help.
func (k FailureKind) Retryable() bool {
	return k == FailureTransient || k == FailureStalled
}
