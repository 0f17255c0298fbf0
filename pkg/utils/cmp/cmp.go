// Package cmp provides equality helpers for slices and maps,
// mainly for assertions in tests.
package cmp

// SliceEq checks two slices have same items in same order.
func SliceEq[T comparable](a []T, b []T) bool {
	return SliceEqWith(a, b, func(a, b T) bool { return a == b })
}

// SliceEqWith checks two slices are equal, item by item, with the given predicate.
func SliceEqWith[T any, U any](a []T, b []U, pred func(a T, b U) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !pred(a[i], b[i]) {
			return false
		}
	}
	return true
}

// SliceContains checks sli contains item.
func SliceContains[T comparable](sli []T, item T) bool {
	for _, v := range sli {
		if v == item {
			return true
		}
	}
	return false
}

// SliceContentEq checks two slices have same items, ignoring order and
// multiplicity of duplicated items.
func SliceContentEq[T comparable](a []T, b []T) bool {
	return SliceContentEqWith(a, b, func(a, b T) bool { return a == b })
}

// SliceContentEqWith is SliceContentEq with the given predicate.
func SliceContentEqWith[T any, U any](a []T, b []U, pred func(a T, b U) bool) bool {
	return sliceSubsetWith(a, b, pred) && sliceSubsetWith(b, a, func(b U, a T) bool { return pred(a, b) })
}

func sliceSubsetWith[T any, U any](sub []T, super []U, pred func(a T, b U) bool) bool {
	for _, s := range sub {
		found := false
		for _, l := range super {
			if pred(s, l) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MapEq checks two maps have same key-value pairs.
func MapEq[K comparable, V comparable](a map[K]V, b map[K]V) bool {
	return MapEqWith(a, b, func(a, b V) bool { return a == b })
}

// MapEqWith checks two maps have same keys and, for each key,
// values meeting the given predicate.
func MapEqWith[K comparable, V any, W any](a map[K]V, b map[K]W, pred func(a V, b W) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !pred(va, vb) {
			return false
		}
	}
	return true
}
