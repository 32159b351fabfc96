// Package nodeid derives stable node identifiers from node titles.
package nodeid

import (
	"strconv"

	"github.com/spaolacci/murmur3"
)

// Compute returns the MurmurHash3 (x86, 32-bit, seed 0) of the UTF-8 bytes of title.
func Compute(title string) uint32 {
	return murmur3.Sum32([]byte(title))
}

// Of returns the identifier of title rendered the way it appears on disk.
func Of(title string) string {
	return Format(Compute(title))
}

// Format renders a raw identifier as an unsigned decimal string.
func Format(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Valid reports whether s looks like a complete rendered identifier.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}
