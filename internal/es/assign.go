package es

// Assign writes v into *field and stages it in *change when it differs from
// the current value. base is the value as of the last committed event: when
// v equals base the staged change is cleared, so setting a field away and
// back within one pending window raises nothing. It reports whether the
// field changed.
func Assign[T comparable](field *T, v T, base T, change **Change[T]) bool {
	if *field == v {
		return false
	}
	*field = v
	if v == base {
		*change = nil
	} else {
		*change = Set(v)
	}
	return true
}

// AssignFunc is Assign for types that are not comparable, such as slices.
func AssignFunc[T any](field *T, v T, base T, change **Change[T], equal func(a, b T) bool) bool {
	if equal(*field, v) {
		return false
	}
	*field = v
	if equal(v, base) {
		*change = nil
	} else {
		*change = Set(v)
	}
	return true
}
