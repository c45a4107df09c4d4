//go:build !unix

package download

import "math"

// StatfsSpacer has no statfs here; it fails open.
type StatfsSpacer struct{}

func (StatfsSpacer) FreeBytes(string) (uint64, error) {
	return math.MaxUint64, nil
}
