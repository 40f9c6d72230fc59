package sarima

// Lag polynomials are stored by power of the backshift operator: p[k] is the
// coefficient of B^k and p[0] is always 1.

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// arPoly returns 1 - c_1 B^step - c_2 B^(2*step) - ...
func arPoly(coeffs []float64, step int) []float64 {
	p := make([]float64, len(coeffs)*step+1)
	p[0] = 1
	for i, c := range coeffs {
		p[(i+1)*step] = -c
	}
	return p
}

// maPoly returns 1 + c_1 B^step + c_2 B^(2*step) + ...
func maPoly(coeffs []float64, step int) []float64 {
	p := make([]float64, len(coeffs)*step+1)
	p[0] = 1
	for i, c := range coeffs {
		p[(i+1)*step] = c
	}
	return p
}

// diffPoly returns (1-B)^d (1-B^s)^sd.
func diffPoly(d, sd, s int) []float64 {
	p := []float64{1}
	for i := 0; i < d; i++ {
		p = polyMul(p, []float64{1, -1})
	}
	for i := 0; i < sd; i++ {
		seasonal := make([]float64, s+1)
		seasonal[0] = 1
		seasonal[s] = -1
		p = polyMul(p, seasonal)
	}
	return p
}

// applyPoly filters y with p, returning p(B) y for every index where all lags
// are available.
func applyPoly(p []float64, y []float64) []float64 {
	lag := len(p) - 1
	if len(y) <= lag {
		return nil
	}
	out := make([]float64, len(y)-lag)
	for t := lag; t < len(y); t++ {
		v := 0.0
		for k, c := range p {
			if c != 0 {
				v += c * y[t-k]
			}
		}
		out[t-lag] = v
	}
	return out
}
