package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint64 | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 {
		return cerrors.Wrapf(ZeroAlignmentError, "%s is 0", name)
	}
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// RangesOverlap returns true if [aStart, aStart+aSize) and [bStart, bStart+bSize) share a byte
func RangesOverlap[T Number](aStart, aSize, bStart, bSize T) bool {
	return aStart < bStart+bSize && bStart < aStart+aSize
}
