package opt

import (
	"math"
	"math/rand"
)

// levyBeta is the stability index of the Lévy steps.
const levyBeta = 1.5

var lanczos = [...]float64{
	676.5203681218851,
	-1259.1392167224028,
	771.32342877765313,
	-176.61502916214059,
	12.507343278686905,
	-0.13857109526572012,
	9.9843695780195716e-6,
	1.5056327351493116e-7,
}

// gamma is the Lanczos approximation (g=7) of Γ(z), using the reflection
// formula below 0.5.
func gamma(z float64) float64 {
	if z < 0.5 {
		return math.Pi / (math.Sin(math.Pi*z) * lanczosGamma(1-z))
	}
	return lanczosGamma(z)
}

// lanczosGamma requires z >= 0.5.
func lanczosGamma(z float64) float64 {
	z--
	x := 0.99999999999980993
	for i, p := range lanczos {
		x += p / (z + float64(i) + 1)
	}
	t := z + 7 + 0.5
	return math.Sqrt(2*math.Pi) * math.Pow(t, z+0.5) * math.Exp(-t) * x
}

// mantegnaSigma is σ_u of Mantegna's algorithm for stability index beta.
func mantegnaSigma(beta float64) float64 {
	num := gamma(1+beta) * math.Sin(math.Pi*beta/2)
	den := gamma((1+beta)/2) * beta * math.Pow(2, (beta-1)/2)
	return math.Pow(num/den, 1/beta)
}

var levySigma = mantegnaSigma(levyBeta)

// levyStep draws one heavy-tailed step of the given scale.
func levyStep(rng *rand.Rand, scale float64) float64 {
	u := rng.NormFloat64() * scale
	v := rng.NormFloat64()
	return u / math.Pow(math.Abs(v), 1/levyBeta) * levySigma
}

func brownianMove(x []float64, rng *rand.Rand, sigma float64) {
	for i := range x {
		x[i] += sigma * rng.NormFloat64()
	}
}

func levyJump(x []float64, rng *rand.Rand, scale float64) {
	for i := range x {
		x[i] += levyStep(rng, scale)
	}
}

// pullToward moves every coordinate halfway toward the elite.
func pullToward(x, elite []float64) {
	for i := range x {
		x[i] = 0.5*x[i] + 0.5*elite[i]
	}
}

func clamp01(x []float64) {
	for i, v := range x {
		switch {
		case v < 0 || math.IsNaN(v):
			x[i] = 0
		case v > 1:
			x[i] = 1
		}
	}
}
