package slices

import "sort"

// Map generates new slice which contains mapped values.
//
// # Args
//
// - sli: slice to be mapped
//
// - mapper: function maps item in sli to new value
//
// # Returns
//
// - []R: slice of mapped values. R[i] == mapper(sli[i]) .
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	mapped := make([]R, len(sli))
	for i, v := range sli {
		mapped[i] = mapper(v)
	}
	return mapped
}

// KeysOf lists up keys of the map. Order is not determined.
func KeysOf[T any, K comparable](m map[K]T) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ValuesOf lists up values of the map. Order is not determined.
func ValuesOf[T any, K comparable](m map[K]T) []T {
	values := make([]T, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}

// Filter generates new slice holding items where predicator is met.
func Filter[T any](vs []T, predicator func(T) bool) []T {
	filtered := []T{}
	for _, v := range vs {
		if predicator(v) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// First finds the first item matching predicator.
//
// # Returns
//
// - T: the found item (or zero-value)
//
// - bool: true when found
func First[T any](sli []T, predicator func(T) bool) (T, bool) {
	for _, v := range sli {
		if predicator(v) {
			return v, true
		}
	}
	return *new(T), false
}

// Sorted returns a sorted copy of sli. sli itself is kept as it is.
func Sorted[T any](sli []T, less func(a, b T) bool) []T {
	sorted := make([]T, len(sli))
	copy(sorted, sli)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}

// Concat concatenates slices into a new single slice.
func Concat[T any](sli ...[]T) []T {
	length := 0
	for _, s := range sli {
		length += len(s)
	}
	whole := make([]T, 0, length)
	for _, s := range sli {
		whole = append(whole, s...)
	}
	return whole
}
