package ndvar

// Size returns the number of samples of an array with the given shape.
func Size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Strides returns row-major strides for shape.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// AxisOrder returns the old axis at every position after moving axis from to
// position to.
func AxisOrder(ndim, from, to int) []int {
	order := make([]int, 0, ndim)
	for ax := 0; ax < ndim; ax++ {
		if ax != from {
			order = append(order, ax)
		}
	}
	order = append(order, 0)
	copy(order[to+1:], order[to:])
	order[to] = from
	return order
}

// MoveAxis returns a copy of data with axis from moved to position to. The
// other axes keep their relative order.
func MoveAxis[T any](data []T, shape []int, from, to int) ([]T, []int) {
	order := AxisOrder(len(shape), from, to)
	newShape := make([]int, len(shape))
	for k, ax := range order {
		newShape[k] = shape[ax]
	}
	if from == to {
		return append([]T(nil), data...), newShape
	}

	// stride in the output for a step along each input axis
	ns := Strides(newShape)
	dst := make([]int, len(shape))
	for k, ax := range order {
		dst[ax] = ns[k]
	}

	out := make([]T, len(data))
	coords := make([]int, len(shape))
	j := 0
	for i := range data {
		out[j] = data[i]
		for ax := len(shape) - 1; ax >= 0; ax-- {
			coords[ax]++
			j += dst[ax]
			if coords[ax] < shape[ax] {
				break
			}
			j -= coords[ax] * dst[ax]
			coords[ax] = 0
		}
	}
	return out, newShape
}

// Crop keeps indices [start, stop) along axis.
func Crop[T any](data []T, shape []int, axis, start, stop int) []T {
	outer, inner := Size(shape[:axis]), Size(shape[axis+1:])
	n := shape[axis]
	out := make([]T, 0, outer*(stop-start)*inner)
	for o := 0; o < outer; o++ {
		base := o * n * inner
		out = append(out, data[base+start*inner:base+stop*inner]...)
	}
	return out
}

// Uncrop reverses Crop: data has shape with axis cropped to [start, start +
// shape[axis]), and the result has length n along axis with fill outside the
// window.
func Uncrop[T any](data []T, shape []int, axis, start, n int, fill T) []T {
	outer, inner := Size(shape[:axis]), Size(shape[axis+1:])
	m := shape[axis]
	out := make([]T, outer*n*inner)
	for i := range out {
		out[i] = fill
	}
	for o := 0; o < outer; o++ {
		copy(out[(o*n+start)*inner:(o*n+start+m)*inner], data[o*m*inner:(o+1)*m*inner])
	}
	return out
}
