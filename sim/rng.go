package sim

import (
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// SeededRNG is the deterministic random source behind all duration sampling.
// A fixed seed yields an identical call-for-call sequence across runs and
// platforms: gonum's generators are pure Go, with no libm variance.
//
// Not safe for concurrent use; the kernel draws from a single goroutine.
type SeededRNG struct {
	seed uint64
	src  *xrand.Rand
}

// NewSeededRNG creates a generator positioned at the start of the sequence
// for seed.
func NewSeededRNG(seed int64) *SeededRNG {
	r := &SeededRNG{seed: uint64(seed)}
	r.Reset()
	return r
}

// Reset rewinds the generator to its original seed state, so the next draws
// replay the sequence from the beginning.
func (r *SeededRNG) Reset() {
	r.src = xrand.New(xrand.NewSource(r.seed))
}

// Uniform samples from [a, b). A degenerate range (b <= a) returns a without
// consuming a draw, so fixed-duration ranges like (10, 10) stay exact.
func (r *SeededRNG) Uniform(a, b float64) float64 {
	if b <= a {
		return a
	}
	return distuv.Uniform{Min: a, Max: b, Src: r.src}.Rand()
}

// Normal samples a Gaussian with mean mu and standard deviation sigma.
func (r *SeededRNG) Normal(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: r.src}.Rand()
}

// Exponential samples with rate lambda (mean 1/lambda).
func (r *SeededRNG) Exponential(lambda float64) float64 {
	return distuv.Exponential{Rate: lambda, Src: r.src}.Rand()
}

// Choice returns a uniformly random element of seq. Panics on an empty
// slice, matching the contract of indexing into one.
func Choice[T any](r *SeededRNG, seq []T) T {
	if len(seq) == 0 {
		panic("sim: Choice on empty sequence")
	}
	return seq[r.src.Intn(len(seq))]
}
