// Package rowset holds the set operations shared by the table builders.
package rowset

// Value is a comparable view of a nullable column value.
type Value[T comparable] struct {
	V     T
	Valid bool
}

// Of returns the comparable view of p. Two nulls compare equal.
func Of[T comparable](p *T) Value[T] {
	if p == nil {
		return Value[T]{}
	}
	return Value[T]{V: *p, Valid: true}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Distinct removes rows whose key was already seen. The first occurrence of each
// key survives, so the result keeps input order.
func Distinct[T any, K comparable](rows []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		k := key(row)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}
