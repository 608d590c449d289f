package sekai

import (
	"slices"
	"unsafe"
)

// memCopy copies size bytes from src to dst using built-in copy for performance.
func memCopy(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	dstBytes := unsafe.Slice((*byte)(dst), size)
	srcBytes := unsafe.Slice((*byte)(src), size)
	copy(dstBytes, srcBytes)
}

// memClear zeroes size bytes at ptr.
func memClear(ptr unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	clear(unsafe.Slice((*byte)(ptr), size))
}

// growCapacity returns the next capacity for a column that needs to hold at
// least need elements.
func growCapacity(current, need int) int {
	newCap := current * 2
	if newCap < 8 {
		newCap = 8
	}
	if newCap < need {
		newCap = need
	}
	return newCap
}

// sortedInsert inserts id into a sorted id list, returning the new list and
// whether the id was absent.
func sortedInsert(ids []ID, id ID) ([]ID, bool) {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids, false
	}
	out := make([]ID, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...), true
}

// typeIndex returns the position of id in a sorted id list, or -1.
func typeIndex(ids []ID, id ID) int {
	if i, ok := slices.BinarySearch(ids, id); ok {
		return i
	}
	return -1
}

// normalizeType sorts and deduplicates an id list.
func normalizeType(ids []ID) []ID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
