package sdfmesh

// V3i is a 3D integer vector, used for grid dimensions and indices.
type V3i [3]int

// Prod returns the product of the components, the number of
// elements in a grid of dimensions a.
func (a V3i) Prod() int {
	return a[0] * a[1] * a[2]
}

// Positive reports whether every component is greater than zero.
func (a V3i) Positive() bool {
	return a[0] > 0 && a[1] > 0 && a[2] > 0
}
