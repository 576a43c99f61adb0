// Package compute holds small numeric kernels used alongside the pipeline.
package compute

// VectorAdd returns the element-wise sum of a and b.
// The result has length min(len(a), len(b)); extra elements are ignored.
func VectorAdd(a, b []float32) []float32 {
	n := min(len(a), len(b))
	out := make([]float32, n)
	for i := range n {
		out[i] = a[i] + b[i]
	}
	return out
}
