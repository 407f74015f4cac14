package matrix

// DeviceMatrix is the stamping surface handed to device models. Indices are
// 1-based; index 0 means ground and is ignored.
type DeviceMatrix interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
	AddComplexElement(i, j int, real, imag float64)
	AddComplexRHS(i int, real, imag float64)
}
