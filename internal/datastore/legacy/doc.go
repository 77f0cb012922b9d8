// Package legacy maps the two legacy schemas that feed the migration:
// the UC image workshop (UC* types) and the UP card service (User, Account,
// Preference, Image). Rows are read-only inputs; nullable columns are pointers.
package legacy

import "time"

// Value returns the pointed-to value or the zero value
func Value[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// TimeOr returns *t, or fallback when t is NULL
func TimeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return *t
}
