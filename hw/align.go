package hw

import "golang.org/x/exp/constraints"

// AlignUp rounds v up to the next multiple of align, which must be a power of
// two.
func AlignUp[T constraints.Integer](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

// IsAligned reports whether v is a multiple of align, which must be a power of
// two.
func IsAligned[T constraints.Integer](v, align T) bool {
	return v&(align-1) == 0
}

// RoundUp rounds v up to the next multiple of n. In contrast to AlignUp n
// doesn't need to be a power of two.
func RoundUp[T constraints.Integer](v, n T) T {
	return (v + n - 1) / n * n
}
