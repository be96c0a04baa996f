package chunking

// StrideIndices picks k indices spread evenly over [0, n): floor(i*n/k) for i
// in [0, k). When n <= k every index is returned.
func StrideIndices(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if n <= k {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		// floor(i * n/k) without float rounding
		out[i] = i * n / k
	}
	return out
}

// Sample returns the items at StrideIndices(len(items), k), in order. The input
// slice is returned unchanged when it already fits.
func Sample[T any](items []T, k int) []T {
	if len(items) <= k {
		return items
	}
	idx := StrideIndices(len(items), k)
	out := make([]T, 0, len(idx))
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}
