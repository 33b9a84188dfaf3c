package domain

// VectorStatus classifies the outcome of vectorising one corpus line.
type VectorStatus int

// Vectorisation outcomes.
const (
	// VectorOK means the vector was computed normally.
	VectorOK VectorStatus = iota

	// VectorDegraded means the vector was replaced by a zero vector but the build continues.
	VectorDegraded

	// VectorFatal means the build must abort.
	VectorFatal
)

// String returns the string representation.
func (s VectorStatus) String() string {
	switch s {
	case VectorOK:
		return "ok"
	case VectorDegraded:
		return "degraded"
	case VectorFatal:
		return "fatal"
	default:
		return unknownDescription
	}
}

// VectorOutcome is the typed result of vectorising one corpus line.
type VectorOutcome struct {
	Position int
	Vector   []float32
	Status   VectorStatus

	// Reason explains a degraded or fatal outcome.
	Reason string
}

// Usable reports whether the vector can be indexed.
func (o VectorOutcome) Usable() bool {
	return o.Status != VectorFatal
}

// ZeroVector returns a zero vector of the given dimension.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}
